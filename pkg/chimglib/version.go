// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

// ToolVersion specifies the version of the tool. The value is set during
// build time with ldflags.
var ToolVersion = ""
