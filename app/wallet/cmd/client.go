package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/ledger/business/web/errs"
)

var client = http.Client{Timeout: 30 * time.Second}

func get(endpoint string, v any) error {
	resp, err := client.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, v)
}

func post(endpoint string, body any, v any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	resp, err := client.Post(endpoint, "application/json", r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, v)
}

func decode(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		var er errs.Response
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return fmt.Errorf("node returned %s", resp.Status)
		}
		return fmt.Errorf("node returned %s: %s", resp.Status, er.Error)
	}

	if v == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
