package domain

const (
	RequesterAddressCtxKey = "al-requesterAddress"
)

const (
	SecondsPerYear   = 365 * 24 * 60 * 60
	BasisPointsScale = 10000
)
