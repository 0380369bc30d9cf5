package config

// Version is the engine release version.
const Version = "0.1.0"
