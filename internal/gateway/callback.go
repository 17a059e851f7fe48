package gateway

import (
	"html/template"
	"net/http"
)

type callbackPage struct {
	Error          string
	ConversationID string
	ExpiresIn      int64
}

var callbackTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{if .Error}}Authorization Failed{{else}}Authorization Successful{{end}}</title>
  <style>
    body { font-family: system-ui, sans-serif; text-align: center; padding-top: 100px; }
    .success { color: green; font-size: 18px; }
    .failure { color: #b00020; font-size: 18px; }
    #fallback { display: none; margin-top: 20px; }
  </style>
</head>
<body>
{{if .Error}}
  <h2>Authorization Failed</h2>
  <p class="failure">{{.Error}}</p>
  <p>You can close this window and try again from the chat.</p>
{{else}}
  <h2>Authorization Successful!</h2>
  <p class="success">You've been authenticated successfully</p>
  <p>This window will close automatically.</p>
  <div id="fallback">
    <p>If this window didn't close automatically, you can close it and return to your conversation.</p>
  </div>
  <script>
    if (window.opener) {
      window.opener.postMessage({
        type: "authentication_success",
        conversation_id: {{.ConversationID}},
        expires_in: {{.ExpiresIn}}
      }, "*");
    }
    setTimeout(function() {
      window.close();
      document.getElementById("fallback").style.display = "block";
    }, 3500);
  </script>
{{end}}
</body>
</html>
`))

func renderCallback(w http.ResponseWriter, status int, page callbackPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackTemplate.Execute(w, page)
}
