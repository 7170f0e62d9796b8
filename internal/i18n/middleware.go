package i18n

import (
	"net/http"
	"time"
)

// LangCookie remembers an explicit language choice.
const LangCookie = "lang"

// Middleware picks the request language and injects its localizer. An
// explicit ?lang= wins and is remembered in a cookie; otherwise the cookie,
// then Accept-Language, then the default language apply.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				prefs = append(prefs, q)
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    Match(q),
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if c, err := r.Cookie(LangCookie); err == nil {
				prefs = append(prefs, c.Value)
			}
			prefs = append(prefs, r.Header.Get("Accept-Language"), defaultLang)

			lang := Match(prefs...)
			w.Header().Set("Content-Language", lang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
