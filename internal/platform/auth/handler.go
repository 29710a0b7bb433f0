package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// TokenHandler issues tokens for configured service accounts. Accounts map
// client id to secret; roles map client id to granted roles.
type TokenHandler struct {
	verifier *Verifier
	accounts map[string]string
	roles    map[string][]string
}

func NewTokenHandler(verifier *Verifier, accounts map[string]string, roles map[string][]string) *TokenHandler {
	return &TokenHandler{verifier: verifier, accounts: accounts, roles: roles}
}

func (h *TokenHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *TokenHandler) IssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	secret, ok := h.accounts[req.ClientID]
	if !ok || secret != req.ClientSecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid client credentials")
	}

	token, err := h.verifier.IssueToken(req.ClientID, h.roles[req.ClientID])
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer"})
}
