package server

import (
	"fmt"
	"html"
	"net/http"

	"github.com/jotterhq/photolink/pkg/logger"
)

// setSecurityHeaders sets common security headers for the HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'none'; object-src 'none';")
}

// writeSuccessPage renders the post-callback success page.
func writeSuccessPage(w http.ResponseWriter) {
	setSecurityHeaders(w)
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
    <title>Photo Library Connected</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .success { background-color: #e7f6e7; border: 1px solid #b3e6b3; color: #006600; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Photo Library Connected</h1>
        <div class="message success">
            <p>Your photo library is connected. You can close this window and return to your journal.</p>
        </div>
    </div>
</body>
</html>`
	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}

// writeErrorPage renders the post-callback failure page with an actionable
// message. The message is HTML-escaped to prevent XSS.
func writeErrorPage(w http.ResponseWriter, message string) {
	setSecurityHeaders(w)
	w.WriteHeader(http.StatusBadRequest)

	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <title>Connection Failed</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .error { background-color: #ffe7e7; border: 1px solid #ffb3b3; color: #cc0000; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Connection Failed</h1>
        <div class="message error">
            <p>%s</p>
        </div>
    </div>
</body>
</html>`, html.EscapeString(message))
	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}
