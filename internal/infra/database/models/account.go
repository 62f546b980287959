package models

type User struct {
	Address     string       `json:"address" gorm:"primaryKey;type:text"`
	CreditScore string       `json:"creditScore" gorm:"type:text;not null;default:'0'"`
	IsVerified  bool         `json:"isVerified" gorm:"type:boolean;not null;default:false"`
	Credentials []Credential `json:"credentials" gorm:"foreignKey:Address;references:Address;constraint:OnDelete:CASCADE;"`
}

type Credential struct {
	Address string `json:"address" gorm:"primaryKey;type:text"`
	TypeID  uint64 `json:"typeID" gorm:"primaryKey"`
	Value   string `json:"value" gorm:"type:text;not null"`
}

type CredentialType struct {
	ID    uint64 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Label string `json:"label" gorm:"type:text;not null"`
}

type Provider struct {
	Name string `json:"name" gorm:"primaryKey;type:text"`
}

type Setting struct {
	Key   string `json:"key" gorm:"primaryKey;type:text"`
	Value string `json:"value" gorm:"type:text;not null"`
}

type TokenBalance struct {
	Token   string `json:"token" gorm:"primaryKey;type:text"`
	Account string `json:"account" gorm:"primaryKey;type:text"`
	Amount  string `json:"amount" gorm:"type:text;not null"`
}

type TokenAllowance struct {
	Token   string `json:"token" gorm:"primaryKey;type:text"`
	Owner   string `json:"owner" gorm:"primaryKey;type:text"`
	Spender string `json:"spender" gorm:"primaryKey;type:text"`
	Amount  string `json:"amount" gorm:"type:text;not null"`
}
