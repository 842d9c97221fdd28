// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dcrcommitwallet registers verified submissions on the Decred chain
// through a dcrwallet gRPC connection.
package dcrcommitwallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	pb "decred.org/dcrwallet/v3/rpc/walletrpc"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const (
	defaultAccount = 0
	defaultMinConf = 2

	dialRetries = 100
	dialTimeout = 5 * time.Second
)

// Wallet publishes registration transactions.
type Wallet struct {
	account    uint32
	minconf    int32
	conn       *grpc.ClientConn
	wallet     pb.WalletServiceClient
	passphrase []byte
}

// TxLookupResult describes the confirmation state of a registration.
type TxLookupResult struct {
	BlockHash     chainhash.Hash
	Timestamp     int64
	Confirmations int32
	BlockHeight   int32
}

// BalanceResult contains information about the backing dcrwallet account
// balance connected to by dcrcommitd.
type BalanceResult struct {
	Total       int64
	Spendable   int64
	Unconfirmed int64
}

// RegistrationDigest is the value committed to in the OP_RETURN output of a
// registration.
func RegistrationDigest(cid string) [sha256.Size]byte {
	return sha256.Sum256([]byte(cid))
}

// RegistrationScript returns OP_RETURN <sha256(cid)>.
func RegistrationScript(cid string) ([]byte, error) {
	digest := RegistrationDigest(cid)
	return txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).
		AddData(digest[:]).Script()
}

// registrationTx decodes a serialized transaction and ensures it carries the
// registration script.
func registrationTx(serialized, script []byte) (*wire.MsgTx, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(serialized)); err != nil {
		return nil, errors.Wrap(err, "decode signed tx")
	}
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, script) {
			return &tx, nil
		}
	}
	return nil, errors.New("signed tx lacks registration output")
}

// Register creates, signs and publishes a transaction whose only non change
// output commits to cid.
func (w *Wallet) Register(ctx context.Context, cid string) (*chainhash.Hash, error) {
	script, err := RegistrationScript(cid)
	if err != nil {
		return nil, err
	}

	constructRequest := &pb.ConstructTransactionRequest{
		SourceAccount:            w.account,
		RequiredConfirmations:    w.minconf,
		FeePerKb:                 0, // let wallet decide the fee
		OutputSelectionAlgorithm: pb.ConstructTransactionRequest_UNSPECIFIED,
		NonChangeOutputs: []*pb.ConstructTransactionRequest_Output{
			{
				Destination: &pb.ConstructTransactionRequest_OutputDestination{
					Script:        script,
					ScriptVersion: 0,
				},
				Amount: 0,
			},
		},
	}
	constructResponse, err := w.wallet.ConstructTransaction(ctx,
		constructRequest)
	if err != nil {
		return nil, errors.Wrap(err, "construct")
	}

	signResponse, err := w.wallet.SignTransaction(ctx,
		&pb.SignTransactionRequest{
			Passphrase:            w.passphrase,
			SerializedTransaction: constructResponse.UnsignedTransaction,
		})
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}

	signed, err := registrationTx(signResponse.Transaction, script)
	if err != nil {
		return nil, err
	}

	publishResponse, err := w.wallet.PublishTransaction(ctx,
		&pb.PublishTransactionRequest{
			SignedTransaction: signResponse.Transaction,
		})
	if err != nil {
		return nil, errors.Wrap(err, "publish")
	}

	txHash, err := chainhash.NewHash(publishResponse.TransactionHash)
	if err != nil {
		return nil, err
	}

	if *txHash != signed.TxHash() {
		log.Warnf("Published hash %v differs from signed tx %v", txHash,
			signed.TxHash())
	}

	log.Infof("Registered %v in tx %v", cid, txHash)

	return txHash, nil
}

// Lookup returns the confirmation state of tx.
func (w *Wallet) Lookup(ctx context.Context, tx chainhash.Hash) (*TxLookupResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n, err := w.wallet.ConfirmationNotifications(ctx)
	if err != nil {
		return nil, err
	}
	err = n.Send(&pb.ConfirmationNotificationsRequest{
		TxHashes:  [][]byte{tx[:]},
		StopAfter: 0, // We only want one reply
	})
	if err != nil {
		return nil, err
	}
	r, err := n.Recv()
	if err != nil {
		return nil, err
	}
	if len(r.Confirmations) != 1 {
		return nil, fmt.Errorf("invalid reply length: %v",
			len(r.Confirmations))
	}

	h, err := chainhash.NewHash(r.Confirmations[0].TxHash)
	if err != nil {
		return nil, err
	}
	if !h.IsEqual(&tx) {
		return nil, fmt.Errorf("invalid tx hash: %v", tx)
	}

	if r.Confirmations[0].Confirmations <= 0 {
		return &TxLookupResult{
			Confirmations: r.Confirmations[0].Confirmations,
		}, nil
	}

	rbi, err := w.wallet.BlockInfo(ctx, &pb.BlockInfoRequest{
		BlockHash: r.Confirmations[0].BlockHash,
	})
	if err != nil {
		return nil, err
	}
	block, err := chainhash.NewHash(rbi.BlockHash)
	if err != nil {
		return nil, err
	}

	return &TxLookupResult{
		BlockHash:     *block,
		Timestamp:     rbi.Timestamp,
		Confirmations: rbi.Confirmations,
		BlockHeight:   rbi.BlockHeight,
	}, nil
}

// Balance returns balance information of the registration account.
func (w *Wallet) Balance(ctx context.Context) (*BalanceResult, error) {
	r, err := w.wallet.Balance(ctx, &pb.BalanceRequest{
		AccountNumber:         w.account,
		RequiredConfirmations: w.minconf,
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		Total:       r.Total,
		Spendable:   r.Spendable,
		Unconfirmed: r.Unconfirmed,
	}, nil
}

// Close shuts down the gRPC connection to the wallet.
func (w *Wallet) Close() {
	w.conn.Close()
}

// dial keeps trying to establish a wallet connection until dialRetries is
// reached.
func dial(creds credentials.TransportCredentials, host string) (*grpc.ClientConn, error) {
	for retries := 0; retries < dialRetries; retries++ {
		ctx, cancel := context.WithTimeout(context.Background(),
			dialTimeout)
		conn, err := grpc.DialContext(ctx, host, grpc.WithBlock(),
			grpc.WithTransportCredentials(creds))
		cancel()
		if err == nil {
			return conn, nil
		}
		log.Warnf("Cannot establish a dcrwallet connection: %v", err)
		log.Warnf("Retrying... attempt: %v", retries)
	}
	return nil, fmt.Errorf("max retries exceeded")
}

// New returns a connected Wallet.
func New(cert, host string, passphrase []byte) (*Wallet, error) {
	creds, err := credentials.NewClientTLSFromFile(cert, "")
	if err != nil {
		return nil, err
	}

	log.Infof("Wallet: %v", host)
	conn, err := dial(creds, host)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		account:    defaultAccount,
		minconf:    defaultMinConf,
		conn:       conn,
		wallet:     pb.NewWalletServiceClient(conn),
		passphrase: passphrase,
	}, nil
}
