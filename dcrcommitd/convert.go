// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/submission"
	"github.com/shopspring/decimal"
)

// convertCondition translates a wire condition.
func convertCondition(c v1.Condition) (commitment.Condition, error) {
	var (
		target decimal.Decimal
		expiry time.Time
		err    error
	)
	if c.TargetPrice != "" {
		target, err = decimal.NewFromString(c.TargetPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid target price: %v",
				c.TargetPrice)
		}
	}
	if c.Asset != "" && !v1.RegexpAsset.MatchString(c.Asset) {
		return nil, fmt.Errorf("invalid asset: %v", c.Asset)
	}
	if c.Expiry != 0 {
		expiry = time.Unix(c.Expiry, 0)
	}
	return commitment.NewCondition(strings.ToLower(c.Type), c.Asset,
		target, expiry)
}

func convertConditionToV1(c commitment.Condition) v1.Condition {
	vc := v1.Condition{
		Type:        c.Kind(),
		Description: c.Describe(),
	}
	switch cond := c.(type) {
	case commitment.PriceTrigger:
		vc.Asset = cond.Asset
		vc.TargetPrice = cond.Target.String()
	case commitment.TimeLock:
		vc.Expiry = cond.Expiry.Unix()
	}
	return vc
}

func convertCommitmentToV1(c commitment.Commitment) v1.Commitment {
	vc := v1.Commitment{
		ID:          c.ID,
		Hash:        c.Hash,
		Description: c.Description,
		Condition:   convertConditionToV1(c.Condition),
		Status:      c.Status.String(),
		CreatedAt:   c.CreatedAt.Unix(),
	}
	if c.Reveal != nil {
		vc.RevealedAt = c.Reveal.RevealedAt.Unix()
		vc.RevealedSecret = c.Reveal.Secret
		vc.Proof = c.Reveal.Proof
		vc.Automatic = c.Reveal.Automatic
	}
	return vc
}

func convertCommitmentsToV1(cs []commitment.Commitment) []v1.Commitment {
	vcs := make([]v1.Commitment, 0, len(cs))
	for _, c := range cs {
		vcs = append(vcs, convertCommitmentToV1(c))
	}
	return vcs
}

func convertPricesToV1(samples []commitment.Sample) []v1.Price {
	prices := make([]v1.Price, 0, len(samples))
	for _, s := range samples {
		prices = append(prices, v1.Price{
			Asset:      s.Asset,
			Price:      s.Price.String(),
			ObservedAt: s.ObservedAt.Unix(),
		})
	}
	return prices
}

func convertSubmissionForm(f v1.SubmissionForm) submission.FormData {
	return submission.FormData{
		Age:                    f.Age,
		CurrentMood:            f.CurrentMood,
		SleepQuality:           f.SleepQuality,
		StressLevel:            f.StressLevel,
		ExerciseFrequency:      f.ExerciseFrequency,
		DietPreference:         f.DietPreference,
		SelfHarm:               f.SelfHarm,
		SelfHarmRecent:         f.SelfHarmRecent,
		Masturbation:           f.Masturbation,
		MasturbationFeelings:   f.MasturbationFeelings,
		DrugUse:                f.DrugUse,
		SexualPartners:         f.SexualPartners,
		SexualPartnersFeelings: f.SexualPartnersFeelings,
		AbuseHistory:           f.AbuseHistory,
		CrimeHistory:           f.CrimeHistory,
		CrimeCaught:            f.CrimeCaught,
	}
}

func convertSubmissionFormToV1(f submission.FormData) v1.SubmissionForm {
	return v1.SubmissionForm{
		Age:                    f.Age,
		CurrentMood:            f.CurrentMood,
		SleepQuality:           f.SleepQuality,
		StressLevel:            f.StressLevel,
		ExerciseFrequency:      f.ExerciseFrequency,
		DietPreference:         f.DietPreference,
		SelfHarm:               f.SelfHarm,
		SelfHarmRecent:         f.SelfHarmRecent,
		Masturbation:           f.Masturbation,
		MasturbationFeelings:   f.MasturbationFeelings,
		DrugUse:                f.DrugUse,
		SexualPartners:         f.SexualPartners,
		SexualPartnersFeelings: f.SexualPartnersFeelings,
		AbuseHistory:           f.AbuseHistory,
		CrimeHistory:           f.CrimeHistory,
		CrimeCaught:            f.CrimeCaught,
	}
}

func convertVerifiedToV1(v submission.Verified, url string) v1.VerifiedSubmission {
	vs := v1.VerifiedSubmission{
		ID:          v.ID,
		CID:         v.CID,
		URL:         url,
		TxHash:      v.TxHash.String(),
		VerifiedAt:  v.VerifiedAt.Unix(),
		Description: v.Description,
	}
	if v.Submission != nil {
		f := convertSubmissionFormToV1(v.Submission.FormData)
		vs.Form = &f
	}
	return vs
}
