package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jamesruggles/carbonara/internal/model"
	"github.com/jamesruggles/carbonara/internal/tools"
)

// builtinFunc analyzes target in-process and returns its JSON report.
type builtinFunc func(ctx context.Context, target string, progress func(string)) ([]byte, error)

var builtins = map[string]builtinFunc{
	"page-weight": analyzePageWeight,
}

// runBuiltin runs an in-process analyzer under the same contract as
// tools.Run: progress goes to output, which is closed on return.
func runBuiltin(ctx context.Context, spec tools.ToolSpec, output chan<- tools.OutputLine) *tools.ToolResult {
	defer close(output)
	start := time.Now()
	result := &tools.ToolResult{}

	fn, ok := builtins[spec.BinaryName]
	if !ok || len(spec.Args) == 0 {
		result.ExitCode = -1
		result.Error = fmt.Errorf("no built-in analyzer for %s", spec.BinaryName)
		return result
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	progress := func(line string) {
		output <- tools.OutputLine{Timestamp: time.Now(), Stream: tools.StreamStdout, Line: line}
	}
	data, err := fn(ctx, spec.Args[0], progress)
	result.Duration = time.Since(start)
	if err != nil {
		result.ExitCode = 1
		result.Stderr = err.Error()
		result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return result
	}
	result.Stdout = string(data)
	return result
}

// --- Page weight ---

// Sustainable Web Design model, version 3.
const (
	swdKWhPerGB      = 0.81
	swdGridIntensity = 494.0 // gCO2e/kWh, global average
	swdModel         = "swd-v3"
)

const (
	maxDocumentBytes = 8 << 20
	maxAssetBytes    = 32 << 20
	maxAssets        = 150
	assetWorkers     = 6
	userAgent        = "Carbonara/1.0 (page-weight)"
)

type pageAsset struct {
	URL    string `json:"url"`
	Kind   string `json:"kind"`
	Bytes  int64  `json:"bytes"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type metric struct {
	Total float64 `json:"total"`
	Unit  string  `json:"unit"`
}

type pageWeight struct {
	URL             string      `json:"url"`
	FinalURL        string      `json:"finalUrl"`
	Title           string      `json:"title,omitempty"`
	Description     string      `json:"description,omitempty"`
	HTTPStatus      int         `json:"httpStatus"`
	DocumentBytes   int64       `json:"documentBytes"`
	TotalBytes      int64       `json:"totalBytes"`
	ResourceCount   int         `json:"resourceCount"`
	FailedResources int         `json:"failedResources,omitempty"`
	Resources       []pageAsset `json:"resources"`
	LoadTime        int64       `json:"loadTime"`
	EnergyUsage     metric      `json:"energyUsage"`
	CarbonEmissions metric      `json:"carbonEmissions"`
	Model           string      `json:"model"`
	AnalyzedAt      string      `json:"analyzedAt"`
}

// assetSelectors maps a CSS selector to the attribute holding the asset URL
// and the kind it is reported as.
var assetSelectors = []struct {
	selector, attr, kind string
}{
	{`link[rel~="stylesheet"][href]`, "href", "stylesheet"},
	{`script[src]`, "src", "script"},
	{`img[src]`, "src", "image"},
	{`link[rel~="icon"][href]`, "href", "icon"},
	{`link[rel="preload"][href]`, "href", "preload"},
	{`video[src], audio[src], source[src]`, "src", "media"},
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 20 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

func analyzePageWeight(ctx context.Context, target string, progress func(string)) ([]byte, error) {
	start := time.Now()
	client := newHTTPClient()

	progress("Fetching " + target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch URL: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	base := resp.Request.URL

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	report := pageWeight{
		URL:           target,
		FinalURL:      base.String(),
		Title:         strings.TrimSpace(doc.Find("title").First().Text()),
		HTTPStatus:    resp.StatusCode,
		DocumentBytes: int64(len(body)),
		Model:         swdModel,
	}
	if d, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		report.Description = strings.TrimSpace(d)
	}

	assets := collectAssets(doc, base)
	progress(fmt.Sprintf("Found %d resources", len(assets)))
	fetchAssets(ctx, client, assets)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.TotalBytes = report.DocumentBytes
	for _, a := range assets {
		report.TotalBytes += a.Bytes
		if a.Error != "" {
			report.FailedResources++
		}
	}
	report.Resources = assets
	report.ResourceCount = len(assets)
	report.LoadTime = time.Since(start).Milliseconds()

	energy := float64(report.TotalBytes) / 1e9 * swdKWhPerGB
	report.EnergyUsage = metric{Total: round(energy, 6), Unit: "kWh"}
	report.CarbonEmissions = metric{Total: round(energy*swdGridIntensity, 3), Unit: "g"}
	report.AnalyzedAt = model.FormatTimestamp(time.Now())

	progress(fmt.Sprintf("Transferred %d bytes across %d resources (%d failed)", report.TotalBytes, report.ResourceCount, report.FailedResources))
	return json.Marshal(report)
}

// collectAssets lists the distinct http(s) assets the document references,
// resolved against base.
func collectAssets(doc *goquery.Document, base *url.URL) []pageAsset {
	seen := make(map[string]bool)
	assets := []pageAsset{}
	for _, s := range assetSelectors {
		doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
			if len(assets) >= maxAssets {
				return
			}
			raw, _ := sel.Attr(s.attr)
			ref, err := url.Parse(strings.TrimSpace(raw))
			if err != nil || raw == "" {
				return
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				return
			}
			abs.Fragment = ""
			key := abs.String()
			if seen[key] {
				return
			}
			seen[key] = true
			assets = append(assets, pageAsset{URL: key, Kind: s.kind})
		})
	}
	return assets
}

// fetchAssets downloads each asset, recording its size or failure in place.
func fetchAssets(ctx context.Context, client *http.Client, assets []pageAsset) {
	var g errgroup.Group
	g.SetLimit(assetWorkers)

	for i := range assets {
		g.Go(func() error {
			n, status, err := fetchSize(ctx, client, assets[i].URL)
			assets[i].Bytes = n
			assets[i].Status = status
			if err != nil {
				assets[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func fetchSize(ctx context.Context, client *http.Client, rawURL string) (int64, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, resp.StatusCode, errors.New(resp.Status)
	}
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxAssetBytes))
	return n, resp.StatusCode, err
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
