package spec

import (
	"net/url"
	"strings"
)

// localHosts are the hostnames treated as a locally hosted TrackLab service.
var localHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
}

// IsLocalBaseURL reports whether the service base URL points at a locally
// hosted deployment.
func IsLocalBaseURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		// Bare "localhost:8080" parses with an empty host; fall back to the
		// text before the first colon.
		host = strings.SplitN(raw, ":", 2)[0]
	}
	_, ok := localHosts[strings.ToLower(host)]
	return ok
}

// LocalNetworkArgs returns the docker arguments a container needs to reach a
// locally hosted service from inside the container. Pure function of the
// platform and base URL:
//
//	windows            net=host
//	linux              network=host, add-host=host.docker.internal:host-gateway
//	other (darwin, …)  network=host
//
// A non-local base URL yields no arguments.
func LocalNetworkArgs(goos, baseURL string) map[string]string {
	args := map[string]string{}
	if !IsLocalBaseURL(baseURL) {
		return args
	}
	if goos == "windows" {
		args["net"] = "host"
	} else {
		args["network"] = "host"
	}
	if goos == "linux" {
		args["add-host"] = "host.docker.internal:host-gateway"
	}
	return args
}
