package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE cases (
				id VARCHAR(255) PRIMARY KEY,
				workflow VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'canceled')),
				family_id VARCHAR(255) NOT NULL,
				parent_work_item_id VARCHAR(255),
				document_id VARCHAR(255),
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_cases_workflow ON cases(workflow);
			CREATE INDEX idx_cases_status ON cases(status);
			CREATE INDEX idx_cases_family_id ON cases(family_id);
			CREATE INDEX idx_cases_parent_work_item_id ON cases(parent_work_item_id);

			CREATE TABLE work_items (
				id VARCHAR(255) PRIMARY KEY,
				case_id VARCHAR(255) NOT NULL REFERENCES cases(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
				task VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('ready', 'completed', 'skipped', 'canceled')),
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_work_items_case_id ON work_items(case_id, created_at, id);
			CREATE INDEX idx_work_items_status ON work_items(status);

			CREATE TABLE documents (
				id VARCHAR(255) PRIMARY KEY,
				form VARCHAR(255) NOT NULL,
				family_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_documents_form ON documents(form);
		`,
	}
}
