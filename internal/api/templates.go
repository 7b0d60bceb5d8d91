package api

import "html/template"

const formTemplate = `{{define "form.html"}}<!doctype html>
<html>
  <head><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Room.Name}}</title></head>
  <body style="font-family: sans-serif; max-width: 640px; margin: 20px auto;">
    <h1>Room Update</h1>
    <p><b>Room:</b> {{.Room.Name}} (id={{.Room.ID}})</p>
    <p><b>Current status:</b> {{.Room.Status}}</p>
    <p><b>Role:</b> {{.Role}}</p>
    <form method="post" action="/update">
      <input type="hidden" name="room_id" value="{{.Room.ID}}" />
      <input type="hidden" name="role" value="{{.Role}}" />
      <input type="hidden" name="sig" value="{{.Sig}}" />
      {{range .Actions}}<button type="submit" name="new_status" value="{{.}}" style="padding: 14px; margin: 8px;">{{.}}</button>
      {{else}}<p>No valid actions available right now for this role.</p>{{end}}
    </form>
  </body>
</html>{{end}}`

const messageTemplate = `{{define "message.html"}}<!doctype html>
<html>
  <body style="font-family: sans-serif; max-width: 640px; margin: 20px auto;">
    <h1>{{.Title}}</h1>
    {{if .Detail}}<p>{{.Detail}}</p>{{end}}
  </body>
</html>{{end}}`

// Templates parses the HTML pages served to QR form users.
func Templates() *template.Template {
	return template.Must(template.New("pages").Parse(formTemplate + messageTemplate))
}
