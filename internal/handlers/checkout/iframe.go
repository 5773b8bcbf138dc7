package checkout

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// iframeTmpl wraps the hosted payment page so it renders inside the shop's
// own page chrome instead of a full-page redirect.
var iframeTmpl = template.Must(template.New("iframe").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Payment</title>
<style>
html, body { margin: 0; padding: 0; height: 100%; }
iframe { border: 0; width: 100%; height: 100%; }
</style>
</head>
<body>
<iframe src="{{.Target}}" allow="payment"></iframe>
</body>
</html>
`))

func (h *Handler) renderIframe(w http.ResponseWriter, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := iframeTmpl.Execute(w, struct{ Target string }{Target: target}); err != nil {
		h.logger.Error("iframe rendering failed", zap.Error(err))
	}
}
