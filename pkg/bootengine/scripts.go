// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package bootengine

import "fmt"

// localBootScript tells the firmware to fall back to its local disk.
const localBootScript = "#!ipxe\necho Booting from local disk\nsanboot --no-describe --drive 0x80 || exit\n"

// discoveryScript is returned for nodes not yet assigned a workflow.
func discoveryScript(waitSeconds int) string {
	return fmt.Sprintf("#!ipxe\necho Node discovered, awaiting assignment\nsleep %d\nsanboot --no-describe --drive 0x80 || exit\n", waitSeconds)
}

// noWorkflowScript is returned for a pending node with no workflow bound.
func noWorkflowScript(waitSeconds int) string {
	return fmt.Sprintf("#!ipxe\necho No workflow assigned, waiting\nsleep %d\nsanboot --no-describe --drive 0x80 || exit\n", waitSeconds)
}

// errorScript is returned when a bound workflow cannot be loaded.
func errorScript(detail string) string {
	return fmt.Sprintf("#!ipxe\necho Boot error: %s\nsleep 10\nsanboot --no-describe --drive 0x80 || exit\n", detail)
}

// installScript composes the kernel/initrd boot sequence for a pending or
// retrying install.
func installScript(server, kernelPath, initrdPath, cmdline string) string {
	return fmt.Sprintf("#!ipxe\nkernel %s%s %s\ninitrd %s%s\nboot\n", server, kernelPath, cmdline, server, initrdPath)
}

// failedInstallScript is returned once install_attempts has reached the
// configured threshold.
const failedInstallScript = "#!ipxe\necho Install failed after maximum attempts, manual intervention required\nsanboot --no-describe --drive 0x80 || exit\n"

// manualInterventionScript is the local-boot variant for a node sitting in
// install_failed on every subsequent boot.
const manualInterventionScript = "#!ipxe\necho Node requires manual intervention (install_failed)\nsanboot --no-describe --drive 0x80 || exit\n"
