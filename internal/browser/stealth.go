package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// applyStealth injects the stealth evasions before any page script runs.
func applyStealth(page *rod.Page) error {
	_, err := page.EvalOnNewDocument(stealth.JS)
	return err
}

// applyResourceBlocking installs a request filter that aborts the listed
// resource types and continues everything else.
func applyResourceBlocking(page *rod.Page, types []string) {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)

	// Config names are plural; CDP resource types are singular.
	switch lower {
	case "image":
		return blockSet["images"] || blockSet["image"]
	case "font":
		return blockSet["fonts"] || blockSet["font"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"] || blockSet["stylesheet"]
	case "script":
		return blockSet["scripts"] || blockSet["script"]
	}
	return blockSet[lower]
}
