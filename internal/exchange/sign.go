package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// tokenPayload is the claim set carried by an authenticated request.
// QueryHash is the SHA-512 of the raw query string and is present only when
// the request has parameters.
type tokenPayload struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash,omitempty"`
	QueryHashAlg string `json:"query_hash_alg,omitempty"`
}

// SignRequest produces the bearer token for an authenticated REST call.
// Pass the encoded query string, or empty for parameterless requests.
func SignRequest(accessKey, secretKey, query string) (string, error) {
	payload := tokenPayload{
		AccessKey: accessKey,
		Nonce:     uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		payload.QueryHash = hex.EncodeToString(sum[:])
		payload.QueryHashAlg = "SHA512"
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	claims, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(claims)

	signingInput := header + "." + body
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(signingInput))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return "Bearer " + signingInput + "." + sig, nil
}
