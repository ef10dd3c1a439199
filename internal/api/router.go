package api

import (
	"net/http"
	"strings"

	"github.com/example/stock-ledger/internal/api/middleware"
	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/domain/user"
	"go.uber.org/zap"
)

func methodNotAllowed(w http.ResponseWriter) {
	respondJSONError(w, "method_not_allowed", "method not allowed", http.StatusMethodNotAllowed)
}

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	authenticated := middleware.Authenticate(jwtService)
	adminOnly := middleware.RequireRole(user.RoleAdmin)

	mux.HandleFunc("/healthz", handlers.Health)

	// Auth
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		authHandlers.Register(w, r)
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		authHandlers.Login(w, r)
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		authHandlers.Logout(w, r)
	})

	mux.Handle("/auth/me", authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		authHandlers.Me(w, r)
	})))

	// Users
	mux.Handle("/users", authenticated(adminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		authHandlers.ListUsers(w, r)
	}))))

	// Products
	mux.Handle("/products", authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		case http.MethodPost:
			handlers.CreateProduct(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/products/low-stock", authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		handlers.GetLowStock(w, r)
	})))

	deleteProduct := adminOnly(http.HandlerFunc(handlers.DeleteProduct))
	mux.Handle("/products/", authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")
		rest := strings.TrimPrefix(path, "/products/")
		switch {
		case rest == "":
			respondJSONError(w, KindNotFound, "product id is required", http.StatusNotFound)
		case strings.HasSuffix(rest, "/stock") && strings.Count(rest, "/") == 1:
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			handlers.AdjustStock(w, r)
		case strings.Contains(rest, "/"):
			respondJSONError(w, KindNotFound, "route not found", http.StatusNotFound)
		case r.Method == http.MethodGet:
			handlers.GetProduct(w, r)
		case r.Method == http.MethodPut:
			handlers.UpdateProduct(w, r)
		case r.Method == http.MethodDelete:
			deleteProduct.ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	return middleware.Logging(logger)(mux)
}
