package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/interceptor"
	"github.com/gryphon-zone/screech/request"
	"github.com/gryphon-zone/screech/transport"
)

// Formatter renders descriptors, exchanges and latency summaries as text.
type Formatter struct {
	Verbose bool
	NoColor bool
	colors  *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, noColor bool) *Formatter {
	return &Formatter{Verbose: verbose, NoColor: noColor, colors: NewColorScheme(!noColor)}
}

// FormatDescriptor renders a compiled endpoint.
func (f *Formatter) FormatDescriptor(d *endpoint.Descriptor) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\n", f.colors.Endpoint.Sprint(d.Name))
	target := d.Path
	if q := formatQuery(d.Query); q != "" {
		target += "?" + q
	}
	fmt.Fprintf(&buf, "  %s %s\n", f.colors.Method.Sprint(d.Method), f.colors.URL.Sprint(target))
	if len(d.Headers) > 0 {
		buf.WriteString("  Headers:\n")
		for _, h := range d.Headers {
			v, _ := h.Value.Get()
			fmt.Fprintf(&buf, "    %s: %s\n", f.colors.HeaderKey.Sprint(h.Key), v)
		}
	}
	params := d.ParamNames()
	if d.BodyIndex >= 0 {
		params = slices.Insert(params, min(d.BodyIndex, len(params)), "<body>")
	}
	if len(params) > 0 {
		fmt.Fprintf(&buf, "  %s %s\n", f.colors.Label.Sprint("Params:"), strings.Join(params, ", "))
	}
	fmt.Fprintf(&buf, "  %s %s\n", f.colors.Label.Sprint("Returns:"), d.Shape)
	return buf.String()
}

func formatQuery(query []request.Pair) string {
	parts := make([]string, 0, len(query))
	for _, p := range query {
		if v, ok := p.Value.Get(); ok {
			parts = append(parts, p.Key+"="+v)
		} else {
			parts = append(parts, p.Key)
		}
	}
	return strings.Join(parts, "&")
}

// FormatRequest renders a request as it went on the wire.
func (f *Formatter) FormatRequest(req request.Serialized) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "▶ REQUEST: %s %s\n", f.colors.Method.Sprint(req.Method), f.colors.URL.Sprint(req.URL()))
	if f.Verbose && len(req.Headers) > 0 {
		buf.WriteString("  Headers:\n")
		for _, h := range req.Headers {
			fmt.Fprintf(&buf, "    %s: %s\n", f.colors.HeaderKey.Sprint(h.Key), h.Value)
		}
	}
	if body, ok := req.Body.Get(); ok && f.Verbose {
		fmt.Fprintf(&buf, "  Body (%s):\n", body.ContentType)
		buf.WriteString(indent(prettyJSON(body.Data)))
		buf.WriteString("\n")
	}
	return buf.String()
}

// FormatResponse renders the status line and timing of a response and,
// when verbose, its headers.
func (f *Formatter) FormatResponse(headers *request.ResponseHeaders, timing transport.Timing) string {
	var buf strings.Builder
	if headers == nil {
		fmt.Fprintf(&buf, "◀ RESPONSE: none (%dms)\n", timing.Total.Milliseconds())
		return buf.String()
	}
	fmt.Fprintf(&buf, "◀ RESPONSE: %s (%dms)\n",
		f.colors.Status(headers.Status).Sprintf("%d", headers.Status),
		timing.Total.Milliseconds())

	if f.Verbose {
		buf.WriteString("  Timing:\n")
		fmt.Fprintf(&buf, "    DNS Lookup:         %dms\n", timing.DNSLookup.Milliseconds())
		fmt.Fprintf(&buf, "    TCP Connection:     %dms\n", timing.TCPConnect.Milliseconds())
		fmt.Fprintf(&buf, "    TLS Handshake:      %dms\n", timing.TLSHandshake.Milliseconds())
		fmt.Fprintf(&buf, "    Time to First Byte: %dms\n", timing.TimeToFirstByte.Milliseconds())
		fmt.Fprintf(&buf, "    Content Transfer:   %dms\n", timing.ContentTransfer.Milliseconds())
		if timing.ReusedConnection {
			buf.WriteString("    (reused connection)\n")
		}
		buf.WriteString("  Headers:\n")
		for _, h := range headers.Headers {
			fmt.Fprintf(&buf, "    %s: %s\n", f.colors.HeaderKey.Sprint(h.Key), h.Value)
		}
	}
	return buf.String()
}

// FormatEntity renders a decoded result. Byte and string results are
// pretty-printed when they hold JSON; other values are marshalled to
// indented JSON.
func (f *Formatter) FormatEntity(entity any) string {
	switch v := entity.(type) {
	case nil:
		return ""
	case []byte:
		return prettyJSON(v)
	case string:
		return prettyJSON([]byte(v))
	}
	out, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", entity)
	}
	return string(out)
}

// FormatError renders a failed call.
func (f *Formatter) FormatError(err error) string {
	return fmt.Sprintf("%s %s\n", ErrorIcon(f.NoColor), f.colors.Error.Sprint(err.Error()))
}

// FormatStats renders latency summaries, one endpoint per block, sorted
// by name.
func (f *Formatter) FormatStats(stats map[string]interceptor.LatencyStats, elapsed time.Duration) string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)

	var buf strings.Builder
	for _, name := range names {
		s := stats[name]
		icon := SuccessIcon(f.NoColor)
		if s.Failures > 0 {
			icon = ErrorIcon(f.NoColor)
		}
		fmt.Fprintf(&buf, "%s %s\n", icon, f.colors.Endpoint.Sprint(name))
		fmt.Fprintf(&buf, "  Calls:     %d (%d failed)\n", s.Count, s.Failures)
		if elapsed > 0 {
			fmt.Fprintf(&buf, "  Rate:      %.1f/s\n", float64(s.Count)/elapsed.Seconds())
		}
		fmt.Fprintf(&buf, "  Latency:   min %s  mean %s  max %s  stddev %s\n",
			round(s.Min), round(s.Mean), round(s.Max), round(s.StdDev))
		fmt.Fprintf(&buf, "  Quantiles: p50 %s  p90 %s  p95 %s  p99 %s\n",
			round(s.P50), round(s.P90), round(s.P95), round(s.P99))
	}
	return buf.String()
}

func round(d time.Duration) time.Duration {
	if d > time.Millisecond {
		return d.Round(10 * time.Microsecond)
	}
	return d.Round(time.Microsecond)
}

// prettyJSON indents data when it is JSON and returns it unchanged
// otherwise.
func prettyJSON(data []byte) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return string(data)
	}
	return pretty.String()
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
