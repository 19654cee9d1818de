package auth

import "crypto/subtle"

// Gate valida a credencial compartilhada apresentada em cada mutação.
// Sem sessão, sem rate limit: cada requisição é autorizada isoladamente.
type Gate struct {
	secret string
}

func New(secret string) *Gate { return &Gate{secret: secret} }

// Check compara a credencial apresentada com a configurada. Segredo
// configurado vazio nunca autoriza (serviço mal configurado fica fechado).
func (g *Gate) Check(presented string) bool {
	if g.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.secret)) == 1
}
