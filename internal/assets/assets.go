// Package assets embeds the host page: editors, preview frame and console.
package assets

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
)

//go:embed host/*
var hostFS embed.FS

var hostPage = template.Must(template.ParseFS(hostFS, "host/index.html"))

// HostFS returns the embedded host page files (host.js, host.css).
func HostFS() fs.FS {
	sub, err := fs.Sub(hostFS, "host")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetHostJS returns the host page script.
func GetHostJS() ([]byte, error) {
	return hostFS.ReadFile("host/host.js")
}

// GetHostCSS returns the host page stylesheet.
func GetHostCSS() ([]byte, error) {
	return hostFS.ReadFile("host/host.css")
}

// HostPage renders the host page with the given title.
func HostPage(title string) ([]byte, error) {
	var buf bytes.Buffer
	if err := hostPage.Execute(&buf, struct{ Title string }{title}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
