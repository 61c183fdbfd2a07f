package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		token := strings.Split(authHeader, " ")[1]
		app := c.(*AppContext).App

		// Master API Key bypass
		if app.MasterAPIKey != "" && token == app.MasterAPIKey {
			c.(*AppContext).User = &AppUser{
				Identity:       "*",
				ConsigneeCodes: []string{"*"},
			}
			return next(c)
		}

		// Parse JWT token
		if app.Key == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		k := *app.Key
		parsed, err := jwt.Parse(token, k.Keyfunc)
		if err != nil || !parsed.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		identity := ""
		if sub, ok := claims["sub"].(string); ok {
			identity = sub
		}
		if identity == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid subject"})
		}

		var codes []string
		switch claim := claims["consignee_codes"].(type) {
		case []any:
			for _, v := range claim {
				if s, ok := v.(string); ok {
					codes = append(codes, s)
				}
			}
		case string:
			for _, s := range strings.Split(claim, ",") {
				if s = strings.TrimSpace(s); s != "" {
					codes = append(codes, s)
				}
			}
		}

		c.(*AppContext).User = &AppUser{
			Identity:       identity,
			ConsigneeCodes: codes,
		}

		return next(c)
	}
}
