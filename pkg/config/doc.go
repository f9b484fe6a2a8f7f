// Package config loads wshandshake configuration.
//
// Values come from, in increasing precedence: defaults, a YAML file, WSH_*
// environment variables and command-line flags. Sources records where each
// set value came from.
//
// A file is validated against an embedded JSON Schema before it is decoded:
//
//	url: wss://chat.example.com/socket
//	origin: https://chat.example.com
//	subprotocols: [chat.v2, chat]
//	deflate: true
//	timeout: 30s
//	trust: host == "localhost" && selfSigned
//	credentials:
//	  - host: "*.example.com"
//	    realm: chat
//	    username: alice
//	    password: s3cret
//	log:
//	  level: debug
//	  format: json
//
// Config.DialOptions converts the result into dialer.Options.
package config
