package model

// Credentials holds the broker app key pair and the split account number.
// Immutable once built by config.ParseCredentials.
type Credentials struct {
	AppKey        string
	AppSecret     string
	AccountPrefix string // CANO, 8 digits
	AccountSuffix string // ACNT_PRDT_CD, 2 digits
}

// AccountNo returns the account in "PREFIX-SUFFIX" form.
func (c Credentials) AccountNo() string {
	return c.AccountPrefix + "-" + c.AccountSuffix
}
