package guard

import (
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

// Lookup finds the guard of the client that sent r.
type Lookup func(r *http.Request) (*Guard, bool)

var waitPage = template.Must(template.New("wait").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>Loading</title>
</head>
<body>
<p role="status">Checking your session&hellip;</p>
{{if .ShowRetry}}
<p>This is taking longer than expected.</p>
<form method="post" action="/session/retry">
<input type="hidden" name="redirect" value="{{.Path}}">
<button type="submit">Try again</button>
</form>
{{end}}
</body>
</html>
`))

type waitView struct {
	ShowRetry bool
	Path      string
}

// RequirePrivate mounts the route only for a resolved-present session and
// sends everyone else to signInPath.
func RequirePrivate(lookup Lookup, signInPath string) gin.HandlerFunc {
	return page(lookup, Private, signInPath)
}

// RequirePublic mounts the route only while nobody is signed in and sends
// signed-in clients to homePath.
func RequirePublic(lookup Lookup, homePath string) gin.HandlerFunc {
	return page(lookup, Public, homePath)
}

func page(lookup Lookup, kind Kind, denyPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := lookup(c.Request)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		snap := g.Snapshot()
		switch snap.Decision(kind) {
		case Wait:
			c.Header("Cache-Control", "no-store")
			c.Render(http.StatusServiceUnavailable, render.HTML{
				Template: waitPage,
				Name:     "wait",
				Data:     waitView{ShowRetry: snap.ShowRetry, Path: c.Request.URL.RequestURI()},
			})
			c.Abort()
		case Deny:
			c.Redirect(http.StatusFound, denyPath)
			c.Abort()
		default:
			c.Next()
		}
	}
}

// RequirePrivateAPI is RequirePrivate for JSON endpoints.
func RequirePrivateAPI(lookup Lookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := lookup(c.Request)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		snap := g.Snapshot()
		switch snap.Decision(Private) {
		case Wait:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":      "session is still being resolved",
				"show_retry": snap.ShowRetry,
			})
		case Deny:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
		default:
			c.Next()
		}
	}
}

// Events streams the decision for the requested view kind as server-sent
// events until the client goes away. ?view=public selects the public kind.
func Events(lookup Lookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := lookup(c.Request)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		kind := Private
		if c.Query("view") == "public" {
			kind = Public
		}

		snaps, stop := g.Watch()
		defer stop()

		c.Header("Cache-Control", "no-store")
		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case snap, ok := <-snaps:
				if !ok {
					return false
				}
				c.SSEvent("decision", gin.H{
					"decision":           snap.Decision(kind),
					"status":             snap.Status,
					"show_retry":         snap.ShowRetry,
					"reachability_error": snap.ReachabilityError,
				})
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}
