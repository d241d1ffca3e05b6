package entity

// Credential carries exchange API secrets. Only Name crosses process
// boundaries; the receiving side resolves the secrets from its own config.
type Credential struct {
	Name       string `json:"name" mapstructure:"name"`
	APIKey     string `json:"-" mapstructure:"api_key"`
	SecretKey  string `json:"-" mapstructure:"secret_key"`
	Passphrase string `json:"-" mapstructure:"passphrase"`
}

func (c Credential) IsZero() bool {
	return c.APIKey == "" && c.SecretKey == "" && c.Passphrase == ""
}
