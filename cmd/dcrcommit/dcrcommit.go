// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/dcrcommitwallet"
	"github.com/decred/dcrcommit/util"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
	headingColor = color.New(color.FgCyan, color.Bold)
)

// app carries the state shared by all commands.
type app struct {
	configFile string
	host       string
	testnet    bool
	skipVerify bool
	dcrdata    string
	debug      bool
	printJSON  bool

	cfg    *config
	client *client
}

// setup loads the configuration file, applies command line overrides and
// creates the server client.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.host
	}
	if flags.Changed("testnet") {
		cfg.TestNet = a.testnet
	}
	if flags.Changed("skipverify") {
		cfg.SkipVerify = a.skipVerify
	}
	if flags.Changed("dcrdata") {
		cfg.Dcrdata = a.dcrdata
	}

	host, err := cfg.serverURL()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = newClient(host, cfg.SkipVerify)
	if a.debug {
		a.client.debug = cmd.ErrOrStderr()
	}
	if a.printJSON {
		a.client.raw = cmd.OutOrStdout()
	}
	return nil
}

func statusColor(status string) *color.Color {
	switch status {
	case v1.StatusRevealed:
		return okColor
	case v1.StatusPending:
		return warnColor
	}
	return failColor
}

// printCommitment writes a human readable commitment.
func printCommitment(w io.Writer, c v1.Commitment) {
	headingColor.Fprintf(w, "%v\n", c.Description)
	fmt.Fprintf(w, "  %-12v: %v\n", "ID", c.ID)
	fmt.Fprintf(w, "  %-12v: %v\n", "Hash", c.Hash)
	fmt.Fprintf(w, "  %-12v: %v\n", "Condition", c.Condition.Description)
	fmt.Fprintf(w, "  %-12v: %v\n", "Status",
		statusColor(c.Status).Sprint(c.Status))
	fmt.Fprintf(w, "  %-12v: %v\n", "Created",
		time.Unix(c.CreatedAt, 0).UTC().Format(time.RFC3339))
	if c.Status != v1.StatusRevealed {
		return
	}
	fmt.Fprintf(w, "  %-12v: %v\n", "Revealed",
		time.Unix(c.RevealedAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  %-12v: %v\n", "Secret", c.RevealedSecret)
	fmt.Fprintf(w, "  %-12v: %v\n", "Proof", c.Proof)
	if c.Automatic {
		fmt.Fprintf(w, "  %-12v: %v\n", "Automatic", c.Automatic)
	}
}

func newDigestCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "digest [file|-]",
		Short: "Print the SHA256 digest of a secret, a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				d   string
				err error
			)
			switch {
			case secret != "":
				d = commitment.Digest(secret)
			case len(args) == 0 || args[0] == "-":
				d, err = util.DigestReader(cmd.InOrStdin())
			default:
				d, err = util.DigestFile(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "digest this text")
	return cmd
}

func newCommitCmd(a *app) *cobra.Command {
	var (
		secret, digest, description string
		kind, asset, target, expiry string
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit to a secret without disclosing it",
		Long: `Commit to a secret without disclosing it.

The secret is hashed locally and only its digest is sent.  Conditions:
  manual                       reveal by hand only
  price --asset --target       auto-reveal once asset trades at target
  time --expiry RFC3339        auto-reveal once expiry passes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (secret == "") == (digest == "") {
				return fmt.Errorf("exactly one of --secret and " +
					"--digest is required")
			}
			if digest == "" {
				digest = commitment.Digest(secret)
			}
			c := v1.Commit{
				ID:          clientID,
				Digest:      digest,
				Description: description,
				Condition: v1.Condition{
					Type:        kind,
					Asset:       asset,
					TargetPrice: target,
				},
			}
			if expiry != "" {
				t, err := time.Parse(time.RFC3339, expiry)
				if err != nil {
					return fmt.Errorf("invalid expiry: %v", err)
				}
				c.Condition.Expiry = t.Unix()
			}

			var reply v1.CommitReply
			if err := a.client.post(v1.CommitRoute, c, &reply); err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			printCommitment(cmd.OutOrStdout(), reply.Commitment)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&secret, "secret", "", "secret to commit to")
	f.StringVar(&digest, "digest", "", "precomputed SHA256 digest")
	f.StringVar(&description, "description", "", "public description")
	f.StringVar(&kind, "type", v1.ConditionManual, "condition type")
	f.StringVar(&asset, "asset", "", "price condition asset")
	f.StringVar(&target, "target", "", "price condition target")
	f.StringVar(&expiry, "expiry", "", "time condition expiry (RFC3339)")
	cmd.MarkFlagRequired("description")
	return cmd
}

func newRevealCmd(a *app) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "reveal <id>",
		Short: "Reveal the secret of a commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reply v1.RevealReply
			err := a.client.post(v1.RevealRoute, v1.Reveal{
				ID:           clientID,
				CommitmentID: args[0],
				Secret:       secret,
			}, &reply)
			if err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}

			w := cmd.OutOrStdout()
			result := v1.Result[reply.Result]
			switch reply.Result {
			case v1.ResultOK:
				okColor.Fprintf(w, "%v %v\n", args[0], result)
			case v1.ResultAlreadyRevealed:
				warnColor.Fprintf(w, "%v %v\n", args[0], result)
			default:
				failColor.Fprintf(w, "%v %v\n", args[0], result)
			}
			if reply.Commitment != nil {
				printCommitment(w, *reply.Commitment)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "the committed secret")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c v1.Commitment
			route := v1.CommitmentsRoute + url.PathEscape(args[0])
			if err := a.client.get(route, &c); err != nil {
				return err
			}
			if !a.printJSON {
				printCommitment(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List commitments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			route := v1.CommitmentsRoute
			if status != "" {
				route += "?status=" + url.QueryEscape(status)
			}
			var reply v1.CommitmentsReply
			if err := a.client.get(route, &reply); err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			w := cmd.OutOrStdout()
			for _, c := range reply.Commitments {
				fmt.Fprintf(w, "%v %-8v %v\n", c.ID,
					statusColor(c.Status).Sprint(c.Status),
					c.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "",
		"only list pending, revealed or expired commitments")
	return cmd
}

func newPricesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show the latest oracle prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reply v1.PricesReply
			if err := a.client.get(v1.PricesRoute, &reply); err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			w := cmd.OutOrStdout()
			for _, p := range reply.Prices {
				fmt.Fprintf(w, "%-6v %14v  %v\n", p.Asset, p.Price,
					time.Unix(p.ObservedAt, 0).UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reply v1.StatusReply
			err := a.client.post(v1.StatusRoute, v1.Status{ID: clientID},
				&reply)
			if err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-14v: %v\n", "Network", reply.Network)
			fmt.Fprintf(w, "%-14v: %v\n", "Backend", reply.Backend)
			fmt.Fprintf(w, "%-14v: %v\n", "Commitments", reply.Commitments)
			fmt.Fprintf(w, "%-14v: %v\n", "Pending", reply.Pending)
			fmt.Fprintf(w, "%-14v: %v\n", "Registrations",
				reply.Registrations)
			fmt.Fprintf(w, "%-14v: %v\n", "Sweeper", reply.Sweeper)
			return nil
		},
	}
}

func newSubmitCmd(a *app) *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "submit <form.json|->",
		Short: "Upload an anonymous wellness assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var form v1.SubmissionForm
			if err := json.NewDecoder(r).Decode(&form); err != nil {
				return fmt.Errorf("invalid form: %v", err)
			}

			var reply v1.SubmissionReply
			err := a.client.post(v1.SubmissionRoute, v1.Submission{
				ID:            clientID,
				WalletAddress: wallet,
				Form:          form,
			}, &reply)
			if err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			w := cmd.OutOrStdout()
			okColor.Fprintf(w, "Uploaded %v\n", reply.SubmissionID)
			fmt.Fprintf(w, "  %-4v: %v\n", "CID", reply.CID)
			fmt.Fprintf(w, "  %-4v: %v\n", "URL", reply.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var verified bool
	cmd := &cobra.Command{
		Use:   "verify <cid>",
		Short: "Register an uploaded submission after identity verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reply v1.SubmissionVerifyReply
			err := a.client.post(v1.SubmissionVerifyRoute,
				v1.SubmissionVerify{
					ID:       clientID,
					CID:      args[0],
					Verified: verified,
				}, &reply)
			if err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			okColor.Fprintf(cmd.OutOrStdout(), "%v registered in %v\n",
				reply.CID, reply.TxHash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", true,
		"outcome of the identity verification")
	return cmd
}

func newSubmissionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions",
		Short: "List verified submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reply v1.SubmissionsReply
			err := a.client.get(v1.SubmissionsRoute, &reply)
			if err != nil {
				return err
			}
			if a.printJSON {
				return nil
			}
			w := cmd.OutOrStdout()
			for _, s := range reply.Submissions {
				headingColor.Fprintf(w, "%v\n", s.Description)
				fmt.Fprintf(w, "  %-9v: %v\n", "CID", s.CID)
				fmt.Fprintf(w, "  %-9v: %v\n", "Tx", s.TxHash)
				if s.Confirmations > 0 {
					fmt.Fprintf(w, "  %-9v: %v (block %v)\n",
						"Confirms", s.Confirmations,
						s.BlockHeight)
				}
				fmt.Fprintf(w, "  %-9v: %v\n", "Verified",
					time.Unix(s.VerifiedAt, 0).UTC().
						Format(time.RFC3339))
				fmt.Fprintf(w, "  %-9v: %v\n", "URL", s.URL)
			}
			return nil
		},
	}
}

func newCheckTxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checktx <tx> <cid>",
		Short: "Check on chain that tx registers cid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := dcrcommitwallet.RegistrationDigest(args[1])
			err := util.VerifyRegistration(a.cfg.dcrdataURL(), args[0],
				digest[:])
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "%v registers %v (%v)\n",
				args[0], args[1], hex.EncodeToString(digest[:]))
			return nil
		},
	}
}

// newRootCmd assembles the command tree.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "dcrcommit",
		Short:         "Commit-reveal client for dcrcommitd",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "digest" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "configfile", "C", defaultConfigFile,
		"path to configuration file")
	pf.StringVar(&a.host, "host", "", "commitment server host")
	pf.BoolVar(&a.testnet, "testnet", false, "use the testnet port")
	pf.BoolVar(&a.skipVerify, "skipverify", false,
		"do not verify the server TLS certificate")
	pf.StringVar(&a.dcrdata, "dcrdata", "",
		"dcrdata transaction API used by checktx")
	pf.BoolVar(&a.debug, "debug", false, "print JSON that is sent to server")
	pf.BoolVar(&a.printJSON, "json", false,
		"print JSON response from server")

	root.AddCommand(
		newDigestCmd(),
		newStatusCmd(a),
		newCommitCmd(a),
		newRevealCmd(a),
		newShowCmd(a),
		newListCmd(a),
		newPricesCmd(a),
		newSubmitCmd(a),
		newVerifyCmd(a),
		newSubmissionsCmd(a),
		newCheckTxCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
