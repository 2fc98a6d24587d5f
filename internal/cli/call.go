package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/client"
	"github.com/gryphon-zone/screech/codec"
	"github.com/gryphon-zone/screech/config"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/interceptor"
	"github.com/gryphon-zone/screech/internal/output"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
	"github.com/gryphon-zone/screech/transport"
)

type callFlags struct {
	params      []string
	headers     []string
	body        string
	baseURL     string
	encoder     string
	extract     string
	schema      string
	timeout     time.Duration
	repeat      int
	concurrency int
	rate        float64
	h2c         bool
	insecure    bool
	requestID   bool
	metrics     bool
}

func newCallCmd(g *globalFlags) *cobra.Command {
	f := &callFlags{}
	cmd := &cobra.Command{
		Use:   "call ENDPOINT",
		Short: "Call an endpoint and print the response",
		Example: `  screech call -f api.yaml users.get -p id=42
  screech call users.create --body '{"name":"Ada"}'
  screech call users.get -p id=42 --repeat 200 --concurrency 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, g, f, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.params, "param", "p", nil, "Parameter as name=value (can be used multiple times)")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "Extra header template as 'Name: value' (can be used multiple times)")
	flags.StringVar(&f.body, "body", "", "Request body, or @path to read it from a file")
	flags.StringVar(&f.baseURL, "base-url", "", "Override the base URL of the definition file")
	flags.StringVar(&f.encoder, "encoder", "json", "Body encoder: json, yaml or text")
	flags.StringVar(&f.extract, "extract", "", "Print only the value at this JSONPath")
	flags.StringVar(&f.schema, "schema", "", "Validate the response body against this JSON Schema file")
	flags.DurationVarP(&f.timeout, "timeout", "t", 0, "Call timeout (default: the definition file's)")
	flags.IntVarP(&f.repeat, "repeat", "n", 1, "Number of calls to make")
	flags.IntVarP(&f.concurrency, "concurrency", "c", 1, "Calls in flight at once when repeating")
	flags.Float64Var(&f.rate, "rate", 0, "Maximum calls per second when repeating (0: unlimited)")
	flags.BoolVar(&f.h2c, "h2c", false, "Use HTTP/2 over cleartext (prior knowledge)")
	flags.BoolVarP(&f.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	flags.BoolVar(&f.requestID, "request-id", false, "Tag every call with a random X-Request-Id header")
	flags.BoolVar(&f.metrics, "metrics", false, "Print Prometheus metrics for the calls made")
	return cmd
}

// exchange is the last request the transport saw.
type exchange struct {
	mu     sync.Mutex
	req    request.Serialized
	timing transport.Timing
}

func (e *exchange) observe(req request.Serialized, _ int, timing transport.Timing, _ error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req, e.timing = req, timing
}

func runCall(cmd *cobra.Command, g *globalFlags, f *callFlags, name string) error {
	if f.repeat < 1 || f.concurrency < 1 {
		return errors.New("--repeat and --concurrency must be at least 1")
	}
	file, groups, err := g.load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := g.logger(cmd.ErrOrStderr())
	formatter := g.formatter(out)

	var (
		last    exchange
		latency *interceptor.Latency
		pool    *async.Pool
	)
	topts := []transport.Option{
		transport.WithTimeout(file.Timeout.GetDuration(config.DefaultTimeout)),
		transport.WithLogger(logger),
	}
	if f.timeout > 0 {
		topts = append(topts, transport.WithTimeout(f.timeout))
	}
	keys := make([]string, 0, len(file.Headers))
	for key := range file.Headers {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		topts = append(topts, transport.WithHeader(key, file.Headers[key]))
	}
	if f.h2c {
		topts = append(topts, transport.WithH2C())
	}
	if f.insecure {
		topts = append(topts, transport.WithInsecureSkipVerify())
	}
	if f.repeat > 1 {
		pool = async.NewPool(async.WithWorkers(f.concurrency), async.WithQueue(f.repeat))
		defer pool.Close()
		topts = append(topts, transport.WithExecutor(pool))
	} else {
		topts = append(topts, transport.WithObserver(last.observe))
	}

	interceptors := []pipeline.Interceptor{interceptor.Logging(logger)}
	if f.requestID {
		interceptors = append(interceptors, interceptor.RequestID(""))
	}
	for _, h := range f.headers {
		pair, err := endpoint.ParseHeader(h)
		if err != nil {
			return err
		}
		v, _ := pair.Value.Get()
		interceptors = append(interceptors, interceptor.Header(pair.Key, v))
	}
	if f.repeat > 1 {
		latency = interceptor.NewLatency()
		interceptors = append([]pipeline.Interceptor{latency}, interceptors...)
	}
	var registry *prometheus.Registry
	if f.metrics {
		registry = prometheus.NewRegistry()
		interceptors = append([]pipeline.Interceptor{interceptor.NewMetricsWithRegistry(registry)}, interceptors...)
	}
	if f.rate > 0 {
		interceptors = append([]pipeline.Interceptor{interceptor.NewRateLimit(f.rate)}, interceptors...)
	}

	encoder, err := codec.EncoderByName(f.encoder)
	if err != nil {
		return err
	}
	decoder, err := f.decoder()
	if err != nil {
		return err
	}

	baseURL := file.BaseURL
	if f.baseURL != "" {
		baseURL = f.baseURL
	}
	opts := []client.Option{
		client.WithTransport(transport.New(topts...)),
		client.WithEncoder(encoder),
		client.WithDecoder(decoder),
		client.WithInterceptors(interceptors...),
		client.WithLogger(logger),
	}
	if baseURL != "" {
		opts = append(opts, client.WithBaseURL(baseURL))
	}
	c, err := client.New(groups, opts...)
	if err != nil {
		return err
	}

	d, ok := c.Descriptor(name)
	if !ok {
		return fmt.Errorf("%w: %s (known: %s)", client.ErrUnknownEndpoint, name, strings.Join(c.Endpoints(), ", "))
	}
	body, err := readBody(f.body)
	if err != nil {
		return err
	}
	args, err := buildArgs(d, f.params, body)
	if err != nil {
		return err
	}

	if registry != nil {
		defer func() {
			if err := writeMetrics(out, registry); err != nil {
				logger.WithError(err).Warn("cannot write metrics")
			}
		}()
	}
	if f.repeat > 1 {
		return repeat(out, formatter, logger, c, latency, name, args, f.repeat)
	}

	r, callErr := c.Exchange(name, args...)
	last.mu.Lock()
	req, timing := last.req, last.timing
	last.mu.Unlock()
	if req.Method != "" {
		fmt.Fprint(out, formatter.FormatRequest(req))
	}
	if callErr != nil {
		var se *codec.StatusError
		if errors.As(callErr, &se) {
			fmt.Fprint(out, formatter.FormatResponse(&request.ResponseHeaders{Status: se.Status, Headers: se.Headers}, timing))
		}
		fmt.Fprint(out, formatter.FormatError(callErr))
		return callErr
	}
	if r.Headers != nil {
		fmt.Fprint(out, formatter.FormatResponse(r.Headers, timing))
	}
	if entity := formatter.FormatEntity(r.Entity); entity != "" {
		fmt.Fprintln(out, entity)
	}
	return nil
}

// decoder builds the success decoder: payload-driven by default, a
// JSONPath extraction with --extract, schema-validated with --schema.
func (f *callFlags) decoder() (pipeline.DecoderFactory, error) {
	decoder := codec.ByPayload(codec.Negotiate(codec.Bytes()))
	if f.extract != "" {
		decoder = codec.JSONPath(f.extract)
	}
	if f.schema != "" {
		schema, err := codec.LoadSchema(f.schema)
		if err != nil {
			return nil, err
		}
		decoder = codec.Validating(schema, decoder)
	}
	return decoder, nil
}

// readBody returns the --body value, reading it from a file when it starts
// with @. An empty value is no body.
func readBody(body string) ([]byte, error) {
	if body == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(body, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return data, nil
	}
	return []byte(body), nil
}

// buildArgs lays out the positional arguments of d from name=value pairs
// and the body. Parameters given no value are nil.
func buildArgs(d *endpoint.Descriptor, params []string, body []byte) ([]any, error) {
	names := d.ParamNames()
	values := make(map[string]string, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", p)
		}
		if !slices.Contains(names, key) {
			return nil, fmt.Errorf("endpoint %s has no parameter %q (parameters: %s)", d.Name, key, strings.Join(names, ", "))
		}
		values[key] = value
	}
	if body != nil && d.BodyIndex < 0 {
		return nil, fmt.Errorf("endpoint %s takes no body", d.Name)
	}

	args := make([]any, d.Arity())
	next := 0
	for i := range args {
		if i == d.BodyIndex {
			if body != nil {
				args[i] = body
			}
			continue
		}
		if v, ok := values[names[next]]; ok {
			args[i] = v
		}
		next++
	}
	return args, nil
}

// repeat issues n asynchronous calls and prints the latency summary. The
// transport pool bounds how many are in flight.
func repeat(out io.Writer, formatter *output.Formatter, logger log.Interface, c *client.Client, latency *interceptor.Latency, name string, args []any, n int) error {
	start := time.Now()
	futures := make([]*async.Future[pipeline.Response], 0, n)
	for i := 0; i < n; i++ {
		future, err := c.Go(name, args...)
		if err != nil {
			return err
		}
		futures = append(futures, future)
	}

	var firstErr error
	failures := 0
	for _, future := range futures {
		if _, err := future.Get(); err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	elapsed := time.Since(start)
	logger.WithFields(log.Fields{"calls": n, "failed": failures, "elapsed": elapsed}).Debug("repeat finished")

	fmt.Fprint(out, formatter.FormatStats(latency.Stats(), elapsed))
	if firstErr != nil {
		fmt.Fprint(out, formatter.FormatError(fmt.Errorf("%d of %d calls failed, first: %w", failures, n, firstErr)))
	}
	return nil
}

// writeMetrics prints every metric family of registry in the Prometheus
// text format.
func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
