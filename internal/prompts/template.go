package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

func parseTemplate(text string) (*template.Template, error) {
	return template.New("prompt").Option("missingkey=error").Parse(text)
}

// Render executes text as a template with data.
func Render(text string, data any) (string, error) {
	tmpl, err := parseTemplate(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return sb.String(), nil
}

// ExtractVariables lists the top-level fields a template reads, sorted and
// without duplicates: "Page {{.PageNumber}} of {{.PageCount}}" yields
// [PageCount PageNumber]. Fields used in conditions count too. A template
// that does not parse has no variables.
func ExtractVariables(text string) []string {
	tmpl, err := parseTemplate(text)
	if err != nil || tmpl.Tree == nil {
		return nil
	}
	var vars []string
	collectFields(tmpl.Tree.Root, &vars)
	slices.Sort(vars)
	return slices.Compact(vars)
}

func collectFields(node parse.Node, vars *[]string) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectFields(c, vars)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, vars)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectFields(arg, vars)
			}
		}
	case *parse.FieldNode:
		*vars = append(*vars, n.Ident[0])
	case *parse.IfNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, vars)
	}
}

func collectBranch(b *parse.BranchNode, vars *[]string) {
	collectFields(b.Pipe, vars)
	collectFields(b.List, vars)
	collectFields(b.ElseList, vars)
}

// HashText returns the hex sha256 of text. Recorded calls carry it so a
// response can be traced to the exact prompt wording.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
