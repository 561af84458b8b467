// SPDX-License-Identifier: GPL-3.0-or-later
package domain

type FolderInfo struct {
	Name       string
	Delimiter  string
	Attributes []string
}

type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
	NoSelect   bool
}

type FolderStatus struct {
	Name        string
	ReadOnly    bool
	Messages    uint32
	UidValidity uint32
	UidNext     uint32
}
