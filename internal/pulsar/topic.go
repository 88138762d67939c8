package pulsar

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Regional websocket endpoints of the Tuya message queue.
const (
	EndpointCN = "wss://mqe.tuyacn.com:8285/"
	EndpointUS = "wss://mqe.tuyaus.com:8285/"
	EndpointEU = "wss://mqe.tuyaeu.com:8285/"
	EndpointIN = "wss://mqe.tuyain.com:8285/"
)

// Topic selects the production or test event stream of a cloud project.
type Topic string

const (
	TopicProd Topic = "event"
	TopicTest Topic = "event-test"
)

// ParseTopic accepts the environment names used in configuration ("prod",
// "test") as well as the raw topic names.
func ParseTopic(s string) (Topic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prod", "production", string(TopicProd):
		return TopicProd, nil
	case "test", string(TopicTest):
		return TopicTest, nil
	default:
		return "", fmt.Errorf("unknown topic %q (want prod or test)", s)
	}
}

type Credentials struct {
	AccessID  string
	AccessKey string
}

// Password is the handshake password: md5hex(id + md5hex(key))[8:24].
func (c Credentials) Password() string {
	inner := md5.Sum([]byte(c.AccessKey))
	outer := md5.Sum([]byte(c.AccessID + hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])[8:24]
}

// TopicURL builds the consumer URL for the project's subscription.
func TopicURL(endpoint, accessID string, topic Topic) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint must be ws:// or wss://, got %q", endpoint)
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	id := url.PathEscape(accessID)
	return endpoint + "ws/v2/consumer/persistent/" + id + "/out/" + string(topic) + "/" + id + "-sub" +
		"?ackTimeoutMillis=3000&subscriptionType=Failover", nil
}
