package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/chatsync/internal/store"
)

// HeaderUserID carries the authenticated user id set by the gateway in
// front of the server.
const HeaderUserID = "X-User-ID"

const ctxUserKey = "chatsync.user"

// Authenticator extracts the user identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-User-ID header, falling back to the
// userId query parameter that browsers can set on a websocket upgrade.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	if id := r.Header.Get(HeaderUserID); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("userId"); id != "" {
		return id, nil
	}
	return "", errUnauthenticated
}

// requireUser resolves the caller and rejects unknown identities with 401.
func (h *Handler) requireUser(c *gin.Context) {
	id, err := h.auth.Authenticate(c.Request)
	if err != nil {
		abortWithError(c, h.logger, errUnauthenticated)
		return
	}
	if _, err := h.store.GetUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errUnauthenticated
		}
		abortWithError(c, h.logger, err)
		return
	}
	c.Set(ctxUserKey, id)
	c.Next()
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserKey)
}
