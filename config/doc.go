// Package config loads endpoint definition files.
//
// A definition file declares a base URL and groups of endpoints in YAML or
// JSON, chosen by file extension:
//
//	baseUrl: http://localhost:8080
//	timeout: 10s
//	groups:
//	  - name: users
//	    headers: ["Accept: application/json"]
//	    endpoints:
//	      - name: get
//	        request: GET /users/{id}
//	        params:
//	          - name: id
//	        returns: json
//
// Basic usage:
//
//	file, err := config.Load("api.yaml")
//	if err != nil {
//	    return err
//	}
//	if errs := config.Validate(file); len(errs) > 0 {
//	    return errs
//	}
//	groups, err := file.EndpointGroups()
//
// Each endpoint's returns, optional and async fields select its declared
// return shape: "json" and "yaml" decode into generic values, "text" into a
// string and "bytes" into a byte slice, optionally wrapped in
// optional.Value and then in *async.Future.
package config
