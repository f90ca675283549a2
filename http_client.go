package main

import "github.com/samromeo1961/csv-data-import-tool/internal/httpx"

var externalHTTPClient = httpx.ExternalHTTPClient()
