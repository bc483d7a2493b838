package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Grouped endpoints nest their CLI command under a parent named by Group.
type Grouped interface {
	Group() string
}

var groupShort = map[string]string{
	"pages":     "Inspect and upload page images",
	"viewer":    "Drive the flipbook",
	"companion": "Ask the AI companion about the current page",
	"calls":     "Browse recorded model calls",
	"prompts":   "Show companion prompts",
}

// Registry is the ordered list of endpoints served by leaflet. Order
// matters: the catch-all static route is registered last.
type Registry struct {
	endpoints []Endpoint
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(ep Endpoint) { r.endpoints = append(r.endpoints, ep) }

func (r *Registry) Endpoints() []Endpoint { return r.endpoints }

// RegisterRoutes mounts every endpoint on mux as "METHOD /path". Handlers of
// endpoints that need the viewer session are wrapped with requireInit.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, requireInit func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, h := ep.Route()
		if ep.RequiresInit() {
			h = requireInit(h)
		}
		mux.HandleFunc(method+" "+path, h)
	}
}

// BuildCommands returns the "api" command with one subcommand per endpoint
// that has a CLI form. serverURL is read when a command runs, after flags
// are parsed.
func (r *Registry) BuildCommands(serverURL func() string) *cobra.Command {
	root := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call a running leaflet server (leaflet serve) over HTTP.
Use --server to point at a server other than http://localhost:8080.

Examples:
  leaflet api health
  leaflet api viewer next
  leaflet api companion chat "what is on sale?"`,
	}

	parents := map[string]*cobra.Command{}
	parentFor := func(group string) *cobra.Command {
		if group == "" {
			return root
		}
		if p, ok := parents[group]; ok {
			return p
		}
		short := groupShort[group]
		if short == "" {
			short = group + " commands"
		}
		p := &cobra.Command{Use: group, Short: short}
		parents[group] = p
		root.AddCommand(p)
		return p
	}

	for _, ep := range r.endpoints {
		cmd := ep.Command(serverURL)
		if cmd == nil {
			continue
		}
		var group string
		if g, ok := ep.(Grouped); ok {
			group = g.Group()
		}
		parentFor(group).AddCommand(cmd)
	}
	return root
}
