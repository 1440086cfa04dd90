// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gateway navigates requests to the external hosts serving them.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Gateway describes where requests matching Pattern are navigated to.
type Gateway struct {
	Name string `json:"Name" config:"name"`

	// Pattern is matched against the request path relative to the server root.
	Pattern string `json:"Pattern" config:"pattern"`

	// Methods restricts the matched methods, all when empty.
	Methods []string `json:"Methods" config:"methods"`

	// Host is used when Navigate carries no host.
	Host string `json:"Host" config:"host"`

	// Navigate is the destination in "[host]/path" form. "{n}" is replaced
	// by the n-th group captured by Pattern.
	Navigate string `json:"Navigate" config:"navigate"`
}

// Elasticsearch returns the gateways proxying content searches to an
// elasticsearch node at host.
func Elasticsearch(host string) []Gateway {
	return []Gateway{
		{
			Name:     "get_content_item_elastic",
			Pattern:  `^api/Content/Item[/]`,
			Methods:  []string{http.MethodGet},
			Navigate: host + "/content/item/_search",
		},
		{
			Name:     "get_content_elastic",
			Pattern:  `^api/Content[/]`,
			Methods:  []string{http.MethodGet},
			Navigate: host + "/content/_search",
		},
	}
}

// Fetch retrieves a JSON list of gateways from url.
func Fetch(ctx context.Context, client *http.Client, url string) ([]Gateway, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, FetchError{URL: url, Status: resp.StatusCode}
	}

	var gws []Gateway
	err = json.NewDecoder(resp.Body).Decode(&gws)
	if err != nil {
		return nil, err
	}
	return gws, nil
}

// FetchError is returned when the gateway listing can not be retrieved.
type FetchError struct {
	URL    string
	Status int
}

// Error implements the [builtin.error] interface.
func (e FetchError) Error() string {
	return fmt.Sprintf("fetching gateways from %s responded with %d", e.URL, e.Status)
}

type compiled struct {
	Gateway
	re *regexp.Regexp
}

func compile(gws []Gateway) ([]compiled, error) {
	cs := make([]compiled, 0, len(gws))
	for _, gw := range gws {
		re, err := regexp.Compile(gw.Pattern)
		if err != nil {
			return nil, fmt.Errorf("gateway %q: %w", gw.Name, err)
		}
		cs = append(cs, compiled{Gateway: gw, re: re})
	}
	return cs, nil
}

func (c compiled) match(method, path string) ([]string, bool) {
	if len(c.Methods) > 0 && !slices.ContainsFunc(c.Methods, func(m string) bool { return strings.EqualFold(m, method) }) {
		return nil, false
	}
	groups := c.re.FindStringSubmatch(path)
	return groups, groups != nil
}

// destination resolves Navigate into a host and a uri.
func (c compiled) destination(groups []string) (host, uri string) {
	nav := c.Navigate
	for i := len(groups) - 1; i > 0; i-- {
		nav = strings.ReplaceAll(nav, "{"+strconv.Itoa(i)+"}", groups[i])
	}
	if strings.HasPrefix(nav, "/") {
		return c.Host, strings.TrimPrefix(nav, "/")
	}
	host, uri, _ = strings.Cut(nav, "/")
	return host, uri
}
