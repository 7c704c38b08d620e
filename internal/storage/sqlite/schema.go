package sqlite

// schema defines the BRM metadata tables.
//
// Column names are UPPER_SNAKE and types are kept loose (SQLite is dynamically
// typed) so that dumps from older deployments load without rewriting. Tables
// that hold history (audit, execution logs, validation logs) carry no foreign
// keys: their rows must survive deletion of the rule they describe.
const schema = `
CREATE TABLE IF NOT EXISTS BRM_RULES (
    RULE_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_NAME TEXT NOT NULL,
    RULE_SQL TEXT,
    RULE_TYPE TEXT,
    OWNER_GROUP TEXT NOT NULL,
    PARENT_RULE_ID INTEGER,
    GROUP_ID INTEGER,
    EFFECTIVE_START_DATE DATETIME,
    EFFECTIVE_END_DATE DATETIME,
    OPERATION_TYPE TEXT,
    IS_GLOBAL INTEGER NOT NULL DEFAULT 0,
    CRITICAL_RULE INTEGER NOT NULL DEFAULT 0,
    CRITICAL_SCOPE TEXT NOT NULL DEFAULT 'NONE',
    CDC_TYPE TEXT,
    STATUS TEXT NOT NULL DEFAULT 'INACTIVE',
    APPROVAL_STATUS TEXT NOT NULL DEFAULT 'APPROVAL_IN_PROGRESS',
    LIFECYCLE_STATE TEXT,
    VERSION INTEGER NOT NULL DEFAULT 1,
    DECISION_TABLE_ID INTEGER,
    CREATED_BY TEXT,
    CREATED_TIMESTAMP DATETIME NOT NULL,
    UPDATED_BY TEXT,
    UPDATED_TIMESTAMP DATETIME NOT NULL,
    UNIQUE (OWNER_GROUP, RULE_NAME)
);

CREATE INDEX IF NOT EXISTS idx_rules_owner_group ON BRM_RULES(OWNER_GROUP);
CREATE INDEX IF NOT EXISTS idx_rules_status ON BRM_RULES(STATUS);
CREATE INDEX IF NOT EXISTS idx_rules_parent ON BRM_RULES(PARENT_RULE_ID);

CREATE TABLE IF NOT EXISTS BRM_RULE_TABLE_DEPENDENCIES (
    DEPENDENCY_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    DATABASE_NAME TEXT,
    TABLE_NAME TEXT NOT NULL,
    COLUMN_NAME TEXT,
    COLUMN_OP TEXT NOT NULL DEFAULT 'READ'
);

CREATE INDEX IF NOT EXISTS idx_table_deps_rule ON BRM_RULE_TABLE_DEPENDENCIES(RULE_ID);
CREATE INDEX IF NOT EXISTS idx_table_deps_table ON BRM_RULE_TABLE_DEPENDENCIES(TABLE_NAME);

CREATE TABLE IF NOT EXISTS BRM_RULE_APPROVALS (
    APPROVAL_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    GROUP_NAME TEXT NOT NULL,
    USERNAME TEXT NOT NULL,
    APPROVED_FLAG INTEGER NOT NULL DEFAULT 0,
    APPROVAL_STAGE INTEGER NOT NULL,
    ACTION_TYPE TEXT NOT NULL,
    APPROVED_AT DATETIME
);

CREATE INDEX IF NOT EXISTS idx_approvals_rule_action ON BRM_RULE_APPROVALS(RULE_ID, ACTION_TYPE);

CREATE TABLE IF NOT EXISTS BRM_RULE_LOCKS (
    LOCK_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    LOCKED_BY TEXT NOT NULL,
    LOCK_TIMESTAMP DATETIME NOT NULL,
    EXPIRY_TIMESTAMP DATETIME NOT NULL,
    FORCE_LOCK INTEGER NOT NULL DEFAULT 0,
    ACTIVE_LOCK INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_locks_rule_active ON BRM_RULE_LOCKS(RULE_ID, ACTIVE_LOCK);

CREATE TABLE IF NOT EXISTS BRM_AUDIT_LOG (
    AUDIT_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    ACTION TEXT NOT NULL,
    TABLE_NAME TEXT NOT NULL,
    RECORD_ID INTEGER NOT NULL,
    ACTION_BY TEXT NOT NULL,
    OLD_DATA TEXT,
    NEW_DATA TEXT,
    ACTION_TIMESTAMP DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_record ON BRM_AUDIT_LOG(TABLE_NAME, RECORD_ID);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON BRM_AUDIT_LOG(ACTION_BY);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON BRM_AUDIT_LOG(ACTION_TIMESTAMP);

CREATE TABLE IF NOT EXISTS RULE_SCHEDULES (
    SCHEDULE_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    SCHEDULE_TIME DATETIME NOT NULL,
    STATUS TEXT NOT NULL DEFAULT 'Scheduled',
    RUN_DATA_VALIDATIONS INTEGER NOT NULL DEFAULT 0,
    CREATED_TIMESTAMP DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedules_status_time ON RULE_SCHEDULES(STATUS, SCHEDULE_TIME);

CREATE TABLE IF NOT EXISTS RULE_EXECUTION_LOGS (
    EXECUTION_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    EXECUTION_TIMESTAMP DATETIME NOT NULL,
    PASS_FLAG INTEGER NOT NULL,
    MESSAGE TEXT,
    RECORD_COUNT INTEGER NOT NULL DEFAULT 0,
    EXECUTION_TIME_MS INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_rule ON RULE_EXECUTION_LOGS(RULE_ID, EXECUTION_TIMESTAMP);

CREATE TABLE IF NOT EXISTS BRM_GLOBAL_CRITICAL_LINKS (
    LINK_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    GCR_RULE_ID INTEGER NOT NULL,
    TARGET_RULE_ID INTEGER NOT NULL,
    UNIQUE (GCR_RULE_ID, TARGET_RULE_ID)
);

CREATE TABLE IF NOT EXISTS BRM_RULE_CONFLICTS (
    CONFLICT_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID1 INTEGER NOT NULL,
    RULE_ID2 INTEGER NOT NULL,
    PRIORITY INTEGER NOT NULL DEFAULT 1,
    UNIQUE (RULE_ID1, RULE_ID2)
);

CREATE TABLE IF NOT EXISTS BRM_COMPOSITE_RULES (
    RULE_ID INTEGER PRIMARY KEY,
    LOGIC_EXPR TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS BRM_COLUMN_MAPPINGS (
    MAPPING_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    RULE_ID INTEGER NOT NULL,
    TARGET_RULE_ID INTEGER NOT NULL,
    SOURCE_COLUMN TEXT,
    TARGET_COLUMN TEXT
);

CREATE INDEX IF NOT EXISTS idx_column_mappings_rule ON BRM_COLUMN_MAPPINGS(RULE_ID);
CREATE INDEX IF NOT EXISTS idx_column_mappings_target ON BRM_COLUMN_MAPPINGS(TARGET_RULE_ID);

CREATE TABLE IF NOT EXISTS BRM_DECISION_TABLES (
    DECISION_TABLE_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    TABLE_NAME TEXT NOT NULL UNIQUE,
    DESCRIPTION TEXT
);

CREATE TABLE IF NOT EXISTS BUSINESS_GROUPS (
    GROUP_NAME TEXT PRIMARY KEY,
    DESCRIPTION TEXT,
    EMAIL TEXT
);

CREATE TABLE IF NOT EXISTS BRM_GROUP_APPROVERS (
    GROUP_NAME TEXT NOT NULL,
    USERNAME TEXT NOT NULL,
    PRIMARY KEY (GROUP_NAME, USERNAME)
);

CREATE TABLE IF NOT EXISTS DATA_VALIDATIONS (
    VALIDATION_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    TABLE_NAME TEXT NOT NULL,
    COLUMN_NAME TEXT NOT NULL,
    VALIDATION_TYPE TEXT NOT NULL,
    PARAMS TEXT,
    CREATED_BY TEXT,
    CREATED_TIMESTAMP DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_table ON DATA_VALIDATIONS(TABLE_NAME);

CREATE TABLE IF NOT EXISTS DATA_VALIDATION_LOGS (
    LOG_ID INTEGER PRIMARY KEY AUTOINCREMENT,
    VALIDATION_ID INTEGER NOT NULL,
    TABLE_NAME TEXT NOT NULL,
    COLUMN_NAME TEXT NOT NULL,
    VALIDATION_TYPE TEXT NOT NULL,
    PARAMS TEXT,
    RESULT TEXT NOT NULL,
    MESSAGE TEXT,
    VALIDATED_TIMESTAMP DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS BRM_CONFIG (
    KEY TEXT PRIMARY KEY,
    VALUE TEXT NOT NULL
);
`
