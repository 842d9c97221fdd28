// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package submission handles anonymous wellness assessments.  Submissions
// are pinned to IPFS and, once verified by an external identity check,
// registered on chain.
package submission

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// Version is the document version written into every submission.
	Version = "1.0.0"

	// TimestampFormat is the layout of Metadata.Timestamp.
	TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

	idPrefix     = "wellness_"
	idRandomSize = 6
	base36       = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// FormData are the answers of a wellness assessment.  The first section is
// required, the sensitive answers are optional.
type FormData struct {
	Age string `json:"age"`

	CurrentMood       string `json:"currentMood"`
	SleepQuality      string `json:"sleepQuality"`
	StressLevel       string `json:"stressLevel"`
	ExerciseFrequency string `json:"exerciseFrequency"`
	DietPreference    string `json:"dietPreference"`

	SelfHarm               string   `json:"selfHarm"`
	SelfHarmRecent         string   `json:"selfHarmRecent"`
	Masturbation           string   `json:"masturbation"`
	MasturbationFeelings   string   `json:"masturbationFeelings"`
	DrugUse                []string `json:"drugUse"`
	SexualPartners         string   `json:"sexualPartners"`
	SexualPartnersFeelings string   `json:"sexualPartnersFeelings"`
	AbuseHistory           string   `json:"abuseHistory"`
	CrimeHistory           string   `json:"crimeHistory"`
	CrimeCaught            string   `json:"crimeCaught"`
}

// Metadata describes a submission document.
type Metadata struct {
	SubmissionID  string `json:"submissionId"`
	Timestamp     string `json:"timestamp"`
	WalletAddress string `json:"walletAddress"`
	Version       string `json:"version"`
	Anonymous     bool   `json:"anonymous"`
}

// Submission is the document that is pinned to IPFS.
type Submission struct {
	FormData FormData `json:"formData"`
	Metadata Metadata `json:"metadata"`
}

// ValidationError lists the missing required answers.
type ValidationError struct {
	Errors []string
}

// Error satisfies the error interface.
func (v ValidationError) Error() string {
	return "Please complete all required fields: " +
		strings.Join(v.Errors, ", ")
}

// Validate returns a ValidationError when a required answer is missing.
func Validate(f FormData) error {
	var errs []string
	if f.Age == "" {
		errs = append(errs, "Age range is required")
	}
	if f.CurrentMood == "" {
		errs = append(errs, "Current mood is required")
	}
	if f.SleepQuality == "" {
		errs = append(errs, "Sleep quality is required")
	}
	if f.StressLevel == "" {
		errs = append(errs, "Stress level is required")
	}
	if f.ExerciseFrequency == "" {
		errs = append(errs, "Exercise frequency is required")
	}
	if f.DietPreference == "" {
		errs = append(errs, "Diet preference is required")
	}
	if len(errs) != 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// NewSubmissionID returns wellness_<base36 unix millis>_<6 random base36
// characters>.
func NewSubmissionID(now time.Time) string {
	var sb strings.Builder
	sb.WriteString(idPrefix)
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	sb.WriteByte('_')
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < idRandomSize; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return sb.String()
}

// New wraps f into an anonymous submission document.
func New(f FormData, walletAddress string, now time.Time) Submission {
	return Submission{
		FormData: f,
		Metadata: Metadata{
			SubmissionID:  NewSubmissionID(now),
			Timestamp:     now.UTC().Format(TimestampFormat),
			WalletAddress: walletAddress,
			Version:       Version,
			Anonymous:     true,
		},
	}
}

// Description summarizes a submission for listings.
func Description(s *Submission) string {
	if s == nil {
		return "Verified Wellness Assessment"
	}
	parts := make([]string, 0, 3)
	if s.FormData.Age != "" {
		parts = append(parts, "Age: "+s.FormData.Age)
	}
	if s.FormData.CurrentMood != "" {
		parts = append(parts, "Mood: "+s.FormData.CurrentMood)
	}
	if s.FormData.StressLevel != "" {
		parts = append(parts, "Stress: "+s.FormData.StressLevel)
	}
	if len(parts) == 0 {
		return "Verified Wellness Assessment"
	}
	return "Wellness Assessment - " + strings.Join(parts, ", ")
}
