package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
)

const (
	msgRegistered      = "User registered successfully"
	msgBadCredentials  = "Incorrect username or password"
	msgNotValidated    = "Could not validate credentials"
	tokenTypeBearer    = "bearer"
	formFieldUsername  = "username"
	formFieldPassword  = "password"
	maxFormBodyBytes   = 64 << 10
	contentTypeJSON    = "application/json"
	contentTypeURLForm = "application/x-www-form-urlencoded"
)

// AuthHandler provides registration, token and identity endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenIssuer
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, tokens *auth.TokenIssuer, logger *slog.Logger) {
	handler := NewAuthHandler(userService, tokens, logger)

	r.Post("/register", handler.Register)
	r.Post("/token", handler.Login)
	r.With(handler.RequireAuth).Get("/users/me", handler.Me)
}

// RequireAuth resolves the bearer token to a user and stores it in the
// request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.tokens, h.userService, h.logger)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(tokens *auth.TokenIssuer, userService *services.UserService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, "Not authenticated")
				return
			}

			username, err := tokens.Validate(tokenString)
			if err != nil {
				writeUnauthorized(w, msgNotValidated)
				return
			}

			user, err := userService.GetByUsername(r.Context(), username)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeUnauthorized(w, msgNotValidated)
					return
				}
				logger.Error("resolve current user failed", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}

			next.ServeHTTP(w, r.WithContext(withCurrentUser(r.Context(), user)))
		})
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if _, err := h.userService.Register(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			writeError(w, http.StatusBadRequest, "Username already registered")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("register user failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Msg: msgRegistered})
}

// Login verifies credentials and returns a bearer token. Credentials are
// read from an OAuth2 password form, or from a JSON body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := parseLoginRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeUnauthorized(w, msgBadCredentials)
			return
		}
		h.logger.Error("authenticate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.tokens.Issue(user.Username)
	if err != nil {
		h.logger.Error("issue token failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
	})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeUnauthorized(w, msgNotValidated)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func parseLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case contentTypeJSON:
		if err := decodeJSON(w, r, &req); err != nil {
			return LoginRequest{}, errors.New("invalid request")
		}
	case contentTypeURLForm, "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
		if err := r.ParseMultipartForm(maxFormBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return LoginRequest{}, errors.New("invalid form")
		}
		req.Username = r.PostFormValue(formFieldUsername)
		req.Password = r.PostFormValue(formFieldPassword)
	default:
		return LoginRequest{}, errors.New("unsupported content type")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return LoginRequest{}, errors.New("missing credentials")
	}
	return req, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
