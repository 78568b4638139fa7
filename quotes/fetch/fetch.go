// Package fetch is the HTTP layer every vendor adapter goes through: one pooled
// client, a rotating desktop User-Agent, a random Referer per request and
// bounded retries with linear back-off.
package fetch

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Desktop browsers the quote endpoints are known to accept.
var uaList = []string{
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/30.0.1599.101",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/38.0.2125.122",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/39.0.2171.71",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/39.0.2171.95",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.1 (KHTML, like Gecko) Chrome/21.0.1180.71",
	"Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1; SV1; QQDownload 732; .NET4.0C; .NET4.0E)",
	"Mozilla/5.0 (Windows NT 5.1; U; en; rv:1.8.1) Gecko/20061208 Firefox/2.0.0 Opera 9.50",
	"Mozilla/5.0 (Windows NT 6.1; WOW64; rv:34.0) Gecko/20100101 Firefox/34.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_3) AppleWebKit/534.55.3 (KHTML, like Gecko) Version/5.1.5 Safari/534.55.3",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/521.61",
}

// RetryStrategy is a strategy for retrying vendor requests: how many attempts
// to do and the base delay. Back-off is linear: the sleep before attempt n+1 is
// n × Delay.
type RetryStrategy struct {
	Attempts int
	Delay    time.Duration
}

// Client is the pooled HTTP getter shared by all market adapters.
type Client struct {
	httpClient *http.Client
	Strategy   RetryStrategy
	debug      *bool
}

// NewClient constructs a Client. Zero values fall back to the defaults: 10s
// timeout, pool of 10, 3 attempts, 1s base delay.
func NewClient(timeout time.Duration, poolSize int, strategy RetryStrategy, debug *bool) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if poolSize == 0 {
		poolSize = 10
	}
	if strategy.Attempts == 0 {
		strategy.Attempts = 3
	}
	if strategy.Delay == 0 {
		strategy.Delay = 1 * time.Second
	}
	if debug == nil {
		debug = new(bool)
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		Strategy:   strategy,
		debug:      debug,
	}
}

// Get fetches a URL following redirects and returns the full body, retrying
// per the client's strategy. After the last failed attempt it returns a
// QuoteReqError wrapping common.ErrNetwork.
func (c *Client) Get(url string) ([]byte, error) {
	var (
		body     []byte
		err      error
		attempts = c.Strategy.Attempts
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if body, err = c.get(url); err == nil {
			return body, nil
		}
		reqErr := err.(common.QuoteReqError)
		if reqErr.IsNotRetryable || attempt == attempts {
			break
		}
		sleepTime := time.Duration(attempt) * c.Strategy.Delay
		if reqErr.RetryAfter > 0 {
			sleepTime = reqErr.RetryAfter
		}
		if *c.debug {
			log.Info().Msgf("Request failed with error: %v, retrying (%v attempts left) after sleeping for %v", reqErr.Err, attempts-attempt, sleepTime)
		}
		time.Sleep(sleepTime)
	}
	reqErr := err.(common.QuoteReqError)
	return nil, common.QuoteReqError{
		Code:         reqErr.Code,
		Err:          fmt.Errorf("%w: failed to fetch %v after %v attempts: %v", common.ErrNetwork, url, attempts, err),
		IsVendorSide: reqErr.IsVendorSide,
	}
}

func (c *Client) get(url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, common.QuoteReqError{Code: 400, Err: err, IsNotRetryable: true}
	}
	req.Header.Set("User-Agent", uaList[rand.Intn(len(uaList))])
	req.Header.Set("Referer", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.QuoteReqError{Code: 500, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := common.QuoteReqError{
			Code:         resp.StatusCode,
			Err:          fmt.Errorf("vendor returned status %v for %v", resp.StatusCode, url),
			IsVendorSide: true,
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After")); seconds > 0 {
				reqErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, reqErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.QuoteReqError{Code: 500, Err: err}
	}
	return body, nil
}
