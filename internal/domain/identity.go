package domain

// ShopperIdentity is the partition key for carts and conversations.
// Exactly one of AccountID or AnonToken is meaningful; AccountID wins.
type ShopperIdentity struct {
	AnonToken string
	AccountID string
}

func Anonymous(token string) ShopperIdentity { return ShopperIdentity{AnonToken: token} }

func AccountIdentity(id, token string) ShopperIdentity {
	return ShopperIdentity{AccountID: id, AnonToken: token}
}

func (s ShopperIdentity) IsZero() bool        { return s.AccountID == "" && s.AnonToken == "" }
func (s ShopperIdentity) Authenticated() bool { return s.AccountID != "" }

// Key returns the stored partition key, or "" for the zero identity.
func (s ShopperIdentity) Key() string {
	switch {
	case s.AccountID != "":
		return AccountKey(s.AccountID)
	case s.AnonToken != "":
		return AnonKey(s.AnonToken)
	}
	return ""
}

func AccountKey(id string) string { return "acct:" + id }
func AnonKey(token string) string { return "anon:" + token }
