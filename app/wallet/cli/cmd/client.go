package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var client = http.Client{
	Timeout: time.Minute,
}

// send posts the request to the node and decodes the response.
func send(url string, dataSend any, dataRecv any) error {
	var body bytes.Buffer
	if dataSend != nil {
		if err := json.NewEncoder(&body).Encode(dataSend); err != nil {
			return err
		}
	}

	resp, err := client.Post(url, "application/json", &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var er struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return fmt.Errorf("status[%d]", resp.StatusCode)
		}
		if len(er.Fields) > 0 {
			return fmt.Errorf("status[%d]: %s: %v", resp.StatusCode, er.Error, er.Fields)
		}
		return fmt.Errorf("status[%d]: %s", resp.StatusCode, er.Error)
	}

	return json.NewDecoder(resp.Body).Decode(dataRecv)
}
