// Package htmlassets finds the same-origin script and stylesheet references of an
// HTML document.
package htmlassets

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// absoluteURL matches scheme-relative and scheme-qualified URLs ("//cdn", "https://").
var absoluteURL = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.-]*:)?//`)

// localURL matches references to a local dev server, which are treated as internal.
var localURL = regexp.MustCompile(`(?i)^https?://localhost(?:[:/?#]|$)`)

// Assets holds the internal references of one document in document order.
// Duplicates are kept.
type Assets struct {
	Scripts     []string
	Stylesheets []string
}

// All returns scripts followed by stylesheets.
func (a Assets) All() []string {
	all := make([]string, 0, len(a.Scripts)+len(a.Stylesheets))
	all = append(all, a.Scripts...)
	return append(all, a.Stylesheets...)
}

// FindInternalAssets tokenizes r and returns every non-empty <script src> and
// stylesheet or preload <link href> that is not an external URL.
func FindInternalAssets(r io.Reader) (Assets, error) {
	var assets Assets
	tokenizer := html.NewTokenizer(r)

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			if err := tokenizer.Err(); err != io.EOF {
				return Assets{}, err
			}
			return assets, nil
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		tagName, moreAttr := tokenizer.TagName()
		name := string(tagName)
		if name != "script" && name != "link" {
			continue
		}

		attrs := map[string]string{}
		for moreAttr {
			var key, val []byte
			key, val, moreAttr = tokenizer.TagAttr()
			if _, seen := attrs[string(key)]; !seen {
				attrs[string(key)] = strings.TrimSpace(string(val))
			}
		}

		if name == "script" {
			if reference := attrs["src"]; isInternal(reference) {
				assets.Scripts = append(assets.Scripts, reference)
			}
			continue
		}
		reference := attrs["href"]
		if !isInternal(reference) {
			continue
		}
		switch linkKind(attrs["rel"], attrs["as"]) {
		case "script":
			assets.Scripts = append(assets.Scripts, reference)
		case "style":
			assets.Stylesheets = append(assets.Stylesheets, reference)
		}
	}
}

func isInternal(reference string) bool {
	return reference != "" && !IsExternalReference(reference)
}

// linkKind classifies a <link> by its rel tokens. Icons, canonical links,
// manifests and the like return "".
func linkKind(rel, as string) string {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		switch token {
		case "stylesheet":
			return "style"
		case "modulepreload":
			return "script"
		case "preload":
			switch strings.ToLower(as) {
			case "script":
				return "script"
			case "style":
				return "style"
			}
		}
	}
	return ""
}

// FindInternalAssetsInBytes is FindInternalAssets over an in-memory document.
func FindInternalAssetsInBytes(document []byte) (Assets, error) {
	return FindInternalAssets(bytes.NewReader(document))
}

// IsExternalReference reports whether reference points off-origin. http(s)://localhost
// references are internal.
func IsExternalReference(reference string) bool {
	if localURL.MatchString(reference) {
		return false
	}
	return absoluteURL.MatchString(reference)
}

// NormalizeReference turns an internal reference into the logical path used for
// staging lookup and HTML rewriting: localhost origins, query strings and fragments
// are dropped, the rest is kept as written.
func NormalizeReference(reference string) string {
	if localURL.MatchString(reference) {
		if parsed, err := url.Parse(reference); err == nil {
			reference = parsed.EscapedPath()
			if reference == "" {
				reference = "/"
			}
		}
	}
	if i := strings.IndexAny(reference, "?#"); i >= 0 {
		reference = reference[:i]
	}
	return reference
}
