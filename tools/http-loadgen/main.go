// http-loadgen drives the scorekeeper HTTP API with referee writes, trigger
// notifications and polls. It reuses HTTP connections (keep-alive) and
// supports concurrency so demo scripts run fast without external tools.
//
// Modes:
//   - write:   PUT /scores/{player}/{course}/{hole} cycling over a small field
//   - trigger: POST /triggers/score-written with before/after pairs
//   - poll:    GET /scores/changes for one group
//   - mixed:   writes, with one poll every -poll_every requests
//
// Usage examples:
//
//	http-loadgen --base=http://127.0.0.1:8080 --mode=write --players=20 --n=5000 --c=16
//	http-loadgen --base=http://127.0.0.1:8080 --mode=mixed --poll_every=10 --group=flight-a
//
// Every value written is in 1..9 and a fraction of writes (-repeat_every)
// repeat the previous value so the no-op suppression path is exercised.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
)

type modeType string

const (
	modeWrite   modeType = "write"
	modeTrigger modeType = "trigger"
	modePoll    modeType = "poll"
	modeMixed   modeType = "mixed"
)

// plan describes the field being scored.
type plan struct {
	mode        modeType
	baseURL     string
	players     int
	courses     int
	holes       int
	group       string
	pollEvery   int
	repeatEvery int
	author      string
}

type request struct {
	method string
	url    string
	body   string
}

// requestFor returns the i-th request issued by worker id. It is
// deterministic so runs are comparable.
func (p plan) requestFor(id, i int) request {
	seq := id*1_000_003 + i
	if p.mode == modePoll || (p.mode == modeMixed && p.pollEvery > 0 && seq%p.pollEvery == 0) {
		return request{
			method: http.MethodGet,
			url:    p.baseURL + "/scores/changes?" + url.Values{"group": {p.group}}.Encode(),
		}
	}
	player := fmt.Sprintf("player-%d", seq%p.players+1)
	course := fmt.Sprintf("course-%d", (seq/p.players)%p.courses+1)
	hole := (seq/(p.players*p.courses))%p.holes + 1
	value := seq%9 + 1
	prev := (seq-1+9)%9 + 1
	if p.repeatEvery > 0 && seq%p.repeatEvery == 0 {
		prev = value
	}
	if p.mode == modeTrigger {
		return request{
			method: http.MethodPost,
			url:    p.baseURL + "/triggers/score-written",
			body: fmt.Sprintf(`{"before":%d,"after":%d,"params":{"playerId":%q,"courseId":%q,"hole":"%d"},"auth":{"uid":%q,"role":"referee"}}`,
				prev, value, player, course, hole, p.author),
		}
	}
	return request{
		method: http.MethodPut,
		url:    fmt.Sprintf("%s/scores/%s/%s/%d", p.baseURL, player, course, hole),
		body:   fmt.Sprintf(`{"value":%d}`, value),
	}
}

func (p plan) validate() error {
	switch p.mode {
	case modeWrite, modeTrigger, modePoll, modeMixed:
	default:
		return fmt.Errorf("unknown --mode=%s (want write|trigger|poll|mixed)", p.mode)
	}
	if p.players <= 0 || p.courses <= 0 || p.holes <= 0 {
		return fmt.Errorf("--players, --courses and --holes must be > 0")
	}
	return nil
}

func main() {
	var (
		base        = pflag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		modeS       = pflag.String("mode", string(modeWrite), "Mode: write|trigger|poll|mixed")
		players     = pflag.Int("players", 20, "Number of players in the field")
		courses     = pflag.Int("courses", 1, "Number of courses")
		holes       = pflag.Int("holes", 18, "Holes per course")
		group       = pflag.String("group", "all", "Poll group")
		pollEvery   = pflag.Int("poll_every", 10, "In mixed mode, one poll per this many requests")
		repeatEvery = pflag.Int("repeat_every", 7, "In trigger mode, one no-op (before == after) per this many requests; 0 disables")
		author      = pflag.String("author", "loadgen", "Author id sent with writes")
		adminToken  = pflag.String("admin_token", "", "Bearer token sent with every request")
		N           = pflag.Int("n", 5000, "Total requests to send")
		conc        = pflag.Int("c", 8, "Number of concurrent workers")
		timeout     = pflag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
		connIdle    = pflag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle     = pflag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer  = pflag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	pflag.Parse()

	p := plan{
		mode:        modeType(strings.ToLower(*modeS)),
		baseURL:     strings.TrimRight(*base, "/"),
		players:     *players,
		courses:     *courses,
		holes:       *holes,
		group:       *group,
		pollEvery:   *pollEvery,
		repeatEvery: *repeatEvery,
		author:      *author,
	}
	if err := p.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "--n and --c must be > 0")
		os.Exit(2)
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var ok2xx, fail4xx, fail5xx, netErr int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			r := p.requestFor(id, i)
			var body io.Reader
			if r.body != "" {
				body = strings.NewReader(r.body)
			}
			req, _ := http.NewRequestWithContext(ctx, r.method, r.url, body)
			if r.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set("X-Author-Id", p.author)
			req.Header.Set("X-Author-Role", "referee")
			if *adminToken != "" {
				req.Header.Set("Authorization", "Bearer "+*adminToken)
			}
			resp, err := client.Do(req)
			if err != nil {
				atomic.AddInt64(&netErr, 1)
				time.Sleep(200 * time.Microsecond)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			switch {
			case resp.StatusCode < 300:
				atomic.AddInt64(&ok2xx, 1)
			case resp.StatusCode < 500:
				atomic.AddInt64(&fail4xx, 1)
			default:
				atomic.AddInt64(&fail5xx, 1)
			}
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d Duration=%s Throughput=%.0f req/s ok=%d 4xx=%d 5xx=%d neterr=%d\n",
		p.mode, *N, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops,
		atomic.LoadInt64(&ok2xx), atomic.LoadInt64(&fail4xx), atomic.LoadInt64(&fail5xx), atomic.LoadInt64(&netErr))
}
