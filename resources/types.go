package resources

// Connection is a Jolokia agent endpoint to discover MBeans from
type Connection struct {
	Name     string                 // Unique connection name
	URL      string                 // Jolokia agent URL
	Tags     map[string]string      // Tags attached to the connection
	Metadata map[string]interface{} // Provider-specific additional data
}
