// Package types defines the Registry and Catalog interfaces, the dictionary,
// corpus, pronunciation, and item entities, and the standard errors and
// remote faults of the Riddler metadata service.
//
// Values in this package travel unchanged between the client proxy, the HTTP
// server, and the storage backends, so every exported field carries a json tag.
package types
