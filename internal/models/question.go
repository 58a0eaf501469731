package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question difficulty levels.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// TestCase is an input/expected-output pair owned by a question. Hidden cases
// are withheld from preview runs and only exercised on real submissions.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
}

// Example is a worked example shown alongside the question description.
type Example struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

// Question represents a coding-practice problem with its test cases and
// acceptance-rate aggregates.
type Question struct {
	ID                    uint                          `gorm:"primaryKey" json:"id"`
	Title                 string                        `gorm:"size:200;uniqueIndex;not null" json:"title"`
	Description           string                        `gorm:"type:text;not null" json:"description"`
	Difficulty            string                        `gorm:"size:16;not null" json:"difficulty"`
	Topic                 string                        `gorm:"size:64;not null" json:"topic"`
	Tags                  datatypes.JSONSlice[string]   `json:"tags"`
	TestCases             datatypes.JSONSlice[TestCase] `json:"test_cases"`
	Solution              string                        `gorm:"type:text" json:"-"`
	Constraints           string                        `gorm:"type:text" json:"constraints,omitempty"`
	Examples              datatypes.JSONSlice[Example]  `json:"examples"`
	Hints                 datatypes.JSONSlice[string]   `json:"hints"`
	AcceptanceRate        int                           `gorm:"default:0" json:"acceptance_rate"`
	TotalSubmissions      int64                         `gorm:"default:0" json:"total_submissions"`
	SuccessfulSubmissions int64                         `gorm:"default:0" json:"successful_submissions"`
	CreatedBy             uint                          `json:"created_by"`
	CreatedAt             time.Time                     `json:"created_at"`
	UpdatedAt             time.Time                     `json:"updated_at"`
}

// PublicTestCases returns the question's non-hidden test cases.
func (q Question) PublicTestCases() []TestCase {
	public := make([]TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		if !tc.IsHidden {
			public = append(public, tc)
		}
	}
	return public
}
