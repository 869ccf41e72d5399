// Package fileutil holds small file helpers shared by the API, staging and
// history packages: upload name cleaning, directory slugs and content digests.
package fileutil
