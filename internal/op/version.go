package op

// WireVersion is the operation wire-format schema version.
// Bump when the tagged payload union changes shape.
const WireVersion = "1.0"

// CoreVersion is the collab core version stamped into journals.
const CoreVersion = "0.3.0"
