package model

// Bank is a reporting institution identified by its ABA routing number.
// ABACode is unique across the banks table.
type Bank struct {
	ID      int64  `db:"id" json:"id"`
	ABACode string `db:"aba_code" json:"aba_code"`
	Name    string `db:"name" json:"name"`
}
