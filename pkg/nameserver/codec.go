package nameserver

import "strings"

// Requests and broadcasts carry a service name and zero or more URLs as
// newline-separated UTF-8 text: simple enough that a name proxy and the
// name server never need to agree on a generated schema, matching how
// the rest of the bus keeps its control-plane payloads opaque byte
// strings rather than a fixed struct layout.

func encodeNameAndURLs(name string, urls []string) []byte {
	parts := append([]string{name}, urls...)
	return []byte(strings.Join(parts, "\n"))
}

func decodeNameAndURLs(payload []byte) (name string, urls []string) {
	parts := strings.Split(string(payload), "\n")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func encodeName(name string) []byte {
	return []byte(name)
}

func decodeName(payload []byte) string {
	return string(payload)
}
