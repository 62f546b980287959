package models

import (
	"time"
)

type Epoch struct {
	ID               uint32         `json:"id" gorm:"primaryKey;autoIncrement:false"`
	StartTime        uint32         `json:"startTime" gorm:"not null"`
	EndTime          uint32         `json:"endTime" gorm:"not null"`
	MinCommitteeSize uint8          `json:"minCommitteeSize" gorm:"not null"`
	Witnesses        []EpochWitness `json:"witnesses" gorm:"foreignKey:EpochID;references:ID;constraint:OnDelete:CASCADE;"`
	CDate            time.Time      `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// EpochWitness keeps the roster order in Position; selection depends on it.
type EpochWitness struct {
	EpochID  uint32 `json:"epochID" gorm:"primaryKey"`
	Position int    `json:"position" gorm:"primaryKey"`
	Address  string `json:"address" gorm:"type:text;not null"`
	Host     string `json:"host" gorm:"type:text"`
}

// Loan amounts are stored as decimal text.
type Loan struct {
	ID               uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Borrower         string    `json:"borrower" gorm:"type:text;not null;index"`
	Lender           string    `json:"lender" gorm:"type:text;index"`
	Amount           string    `json:"amount" gorm:"type:text;not null"`
	InterestRate     uint64    `json:"interestRate" gorm:"not null"`
	Duration         uint64    `json:"duration" gorm:"not null"`
	CollateralToken  string    `json:"collateralToken" gorm:"type:text;not null"`
	CollateralAmount string    `json:"collateralAmount" gorm:"type:text;not null"`
	Status           string    `json:"status" gorm:"type:text;not null;index"`
	StartTime        uint64    `json:"startTime"`
	CDate            time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate            time.Time `json:"mdate" gorm:"autoUpdateTime"`
}

type Offer struct {
	LoanID       uint64    `json:"loanID" gorm:"primaryKey"`
	Loan         Loan      `json:"-" gorm:"foreignKey:LoanID;references:ID;constraint:OnDelete:CASCADE;"`
	Position     int       `json:"position" gorm:"primaryKey"`
	Lender       string    `json:"lender" gorm:"type:text;not null"`
	InterestRate uint64    `json:"interestRate" gorm:"not null"`
	CDate        time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Event struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Type      string    `json:"type" gorm:"type:text;not null;index"`
	Ref       uint64    `json:"ref" gorm:"index"`
	Account   string    `json:"account" gorm:"type:text;index"`
	Value     string    `json:"value" gorm:"type:text"`
	Timestamp int64     `json:"timestamp" gorm:"not null;index"`
	CDate     time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
