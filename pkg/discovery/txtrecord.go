package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates the TXT records for a server advertisement.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	return TXTRecordMap{
		TXTKeyVersion: info.Version,
		TXTKeyDevices: strconv.Itoa(info.Devices),
	}
}

// DecodeServerTXT parses the TXT records of a server advertisement. The
// devices record is optional.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	if s, ok := txt[TXTKeyDevices]; ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyDevices, s)
		}
		info.Devices = n
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXT record map to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// StringsToTXTRecords parses "key=value" strings. Keys are case-insensitive
// per RFC 6763 and are lowercased; entries without '=' are ignored.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok || k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}
